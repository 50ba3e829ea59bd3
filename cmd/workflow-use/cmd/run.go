package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/logging"
	"github.com/yuefengz/workflow-use/internal/schema"
	"github.com/yuefengz/workflow-use/internal/types"
	"github.com/yuefengz/workflow-use/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run a workflow",
	Long: `Execute every step of a workflow in order.

The workflow argument is either a path to a .workflow.json file or a name
looked up in the configured workflow directory. Inputs declared in the
workflow's input schema are passed with --input name=value and coerced to
the declared type.

The completed run is persisted as a record in the runs directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runInputs     []string
	runNoFallback bool
	runJSON       bool
)

func init() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "input values (format: name=value)")
	runCmd.Flags().BoolVar(&runNoFallback, "no-fallback", false, "abort on deterministic failure instead of delegating to the agent")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "output the run record as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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

	inputs, err := parseInputs(def, runInputs)
	if err != nil {
		return err
	}

	delegate := newDelegate(cfg, logger)
	wf, err := workflow.New(def, workflow.Options{
		Driver:          newDriver(cfg, logger),
		Controller:      newController(cfg, logger),
		Delegate:        delegate,
		FallbackEnabled: cfg.Fallback.Enabled && !runNoFallback,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal, cancelling run...")
		cancel()
	}()

	record, runErr := wf.Run(ctx, inputs)

	if record != nil {
		store, err := workflow.NewRunStore(cfg.RunsDir(dir))
		if err != nil {
			logger.Warn("opening run store", "error", err)
		} else if err := store.Save(record); err != nil {
			logger.Warn("saving run record", "error", err)
		}
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(record); err != nil {
			return err
		}
	} else if record != nil {
		printRunRecord(record)
	}

	if werrors.IsCancelled(runErr) {
		fmt.Println("Run cancelled.")
		return nil
	}
	return runErr
}

func printRunRecord(record *types.RunRecord) {
	fmt.Printf("Run %s: %s\n", record.ID, record.Status)
	for _, sr := range record.Steps {
		status := string(sr.State)
		if sr.Recovered {
			status += " (recovered by agent)"
		}
		if sr.State == types.StepStateFailed && sr.Error != "" {
			status = fmt.Sprintf("%s (%s)", status, sr.Error)
		}
		fmt.Printf("  %d. [%s] %s\n", sr.Index+1, sr.Type, status)
	}
}

// parseInputs parses --input name=value pairs, coercing each value to
// the type the workflow declares for it.
func parseInputs(def *types.Definition, pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid input format: %s (expected name=value)", pair)
		}
		name, raw := parts[0], parts[1]

		decl, ok := findInput(def, name)
		if !ok {
			return nil, fmt.Errorf("unknown input %q. Declared inputs: %v", name, inputNames(def))
		}

		switch decl.Type {
		case types.InputNumber:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("input %q must be a number, got %q", name, raw)
			}
			inputs[name] = n
		case types.InputBool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("input %q must be a bool, got %q", name, raw)
			}
			inputs[name] = b
		default:
			inputs[name] = raw
		}
	}
	return inputs, nil
}

func findInput(def *types.Definition, name string) (types.InputDef, bool) {
	for _, in := range def.InputSchema {
		if in.Name == name {
			return in, true
		}
	}
	return types.InputDef{}, false
}

func inputNames(def *types.Definition) []string {
	names := make([]string, len(def.InputSchema))
	for i, in := range def.InputSchema {
		names[i] = in.Name
	}
	return names
}
