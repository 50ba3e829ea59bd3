package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yuefengz/workflow-use/internal/logging"
	"github.com/yuefengz/workflow-use/internal/schema"
	"github.com/yuefengz/workflow-use/internal/types"
	"github.com/yuefengz/workflow-use/internal/workflow"
)

var runStepCmd = &cobra.Command{
	Use:   "run-step <workflow> <index>",
	Short: "Run a single workflow step",
	Long: `Execute one step of a workflow by its zero-based index.

Inputs are required on the first invocation for workflows that declare an
input schema; a fresh browser session is opened and closed around the step.`,
	Args: cobra.ExactArgs(2),
	RunE: runRunStep,
}

var (
	runStepInputs []string
	runStepJSON   bool
)

func init() {
	runStepCmd.Flags().StringArrayVar(&runStepInputs, "input", nil, "input values (format: name=value)")
	runStepCmd.Flags().BoolVar(&runStepJSON, "json", false, "output the step result as JSON")
	rootCmd.AddCommand(runStepCmd)
}

func runRunStep(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid step index %q", args[1])
	}

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	path := resolveWorkflowPath(cfg, dir, args[0])
	def, err := schema.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading workflow: %w", err)
	}

	inputs, err := parseInputs(def, runStepInputs)
	if err != nil {
		return err
	}

	wf, err := workflow.New(def, workflow.Options{
		Driver:          newDriver(cfg, logger),
		Controller:      newController(cfg, logger),
		Delegate:        newDelegate(cfg, logger),
		FallbackEnabled: cfg.Fallback.Enabled,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	result, stepErr := wf.RunStep(cmd.Context(), index, inputs)

	if runStepJSON && result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if result != nil {
		status := string(result.State)
		if result.Recovered {
			status += " (recovered by agent)"
		}
		fmt.Printf("Step %d [%s]: %s\n", result.Index+1, result.Type, status)
		if result.State == types.StepStateFailed && result.Error != "" {
			fmt.Printf("  error: %s\n", result.Error)
		}
	}

	return stepErr
}
