package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yuefengz/workflow-use/internal/agent"
	"github.com/yuefengz/workflow-use/internal/bridge"
	"github.com/yuefengz/workflow-use/internal/browser"
	"github.com/yuefengz/workflow-use/internal/config"
	"github.com/yuefengz/workflow-use/internal/controller"
	"github.com/yuefengz/workflow-use/internal/schema"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"

	// Global flags
	verbose bool
	workDir string
)

var rootCmd = &cobra.Command{
	Use:   "workflow-use",
	Short: "Replay recorded browser workflows",
	Long: `workflow-use replays recorded browser interactions from JSON workflow
definitions: deterministic steps (navigate, click, input, select, key press,
scroll) interleaved with agentic steps, with agent fallback when a
deterministic step breaks.

Browser and agent backends are external processes configured in
.workflow-use/config.toml ([browser] and [agent] command).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; agent backends usually read API keys from it.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare invocation lists available workflows.
		return runLs(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "working directory (default: current)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("workflow-use {{.Version}}\n")
}

// getWorkDir returns the effective working directory.
func getWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}

// loadConfig loads configuration for the effective working directory.
// Verbose mode forces debug logging regardless of config.
func loadConfig() (*config.Config, string, error) {
	dir, err := getWorkDir()
	if err != nil {
		return nil, "", fmt.Errorf("getting working directory: %w", err)
	}
	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, dir, nil
}

// newDriver builds the browser bridge driver from config. The command
// is validated lazily, when a session is opened.
func newDriver(cfg *config.Config, logger *slog.Logger) browser.Driver {
	return bridge.NewDriver(cfg.Browser.Command, logger)
}

// newController builds the step dispatcher with the timeouts configured
// under [controller].
func newController(cfg *config.Config, logger *slog.Logger) *controller.Controller {
	return controller.New(controller.Config{
		Timeout:         cfg.Controller.Timeout,
		KeyPressTimeout: cfg.Controller.KeyPressTimeout,
	}, logger)
}

// newDelegate builds the agent delegate, or nil when no agent backend
// is configured.
func newDelegate(cfg *config.Config, logger *slog.Logger) *agent.Delegate {
	if cfg.Agent.Command == "" {
		return nil
	}
	runner := bridge.NewAgentRunner(cfg.Agent.Command, logger)
	return agent.NewDelegate(runner, cfg.Fallback.MaxSteps, logger)
}

// resolveWorkflowPath accepts either a path to a workflow file or a
// bare workflow name looked up in the configured workflow directory.
func resolveWorkflowPath(cfg *config.Config, dir, arg string) string {
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	name := arg
	if filepath.Ext(name) == "" {
		name += schema.WorkflowExt
	}
	return filepath.Join(cfg.WorkflowDir(dir), name)
}
