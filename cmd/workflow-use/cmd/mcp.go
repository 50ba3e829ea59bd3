package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuefengz/workflow-use/internal/logging"
	"github.com/yuefengz/workflow-use/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve workflows as MCP tools over stdio",
	Long: `Expose every workflow in the configured directory as an MCP tool.
Tool arguments mirror the workflow's input schema; invoking a tool runs
the workflow and returns its step results as JSON.

Intended to be launched by an MCP client; the protocol owns stdout,
logging goes to stderr and the configured log file.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	srv, err := mcp.New(mcp.Options{
		WorkflowDir:     cfg.WorkflowDir(dir),
		Driver:          newDriver(cfg, logger),
		Controller:      newController(cfg, logger),
		Delegate:        newDelegate(cfg, logger),
		FallbackEnabled: cfg.Fallback.Enabled,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	logger.Info("mcp service on stdio", "tools", len(srv.Tools()))
	return srv.ServeStdio()
}
