package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuefengz/workflow-use/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow>",
	Short: "Validate a workflow file",
	Long: `Parse and validate a workflow document: required top-level fields,
input schema types, and per-step configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	path := resolveWorkflowPath(cfg, dir, args[0])
	def, err := schema.LoadFile(path)
	if err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	fmt.Printf("OK: %s (version %s), %d steps, %d inputs\n",
		def.Name, def.Version, len(def.Steps), len(def.InputSchema))

	if verbose {
		for i, step := range def.Steps {
			desc := step.Description
			if desc == "" {
				desc = step.Selector()
			}
			fmt.Printf("  %d. [%s] %s\n", i+1, step.Type, desc)
		}
		for _, in := range def.InputSchema {
			req := "optional"
			if in.Required {
				req = "required"
			}
			fmt.Printf("  input %s: %s (%s)\n", in.Name, in.Type, req)
		}
	}
	return nil
}
