package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuefengz/workflow-use/internal/logging"
	"github.com/yuefengz/workflow-use/internal/service"
	"github.com/yuefengz/workflow-use/internal/workflow"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workflows over HTTP",
	Long: `Start the HTTP service: list and edit workflows, execute them
asynchronously, poll task status and logs, cancel running tasks.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	store, err := workflow.NewRunStore(cfg.RunsDir(dir))
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}

	svc := service.New(service.Options{
		WorkflowDir:     cfg.WorkflowDir(dir),
		RunStore:        store,
		Driver:          newDriver(cfg, logger),
		Controller:      newController(cfg, logger),
		Delegate:        newDelegate(cfg, logger),
		FallbackEnabled: cfg.Fallback.Enabled,
		Logger:          logger,
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: svc.Handler(),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal, stopping...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http service listening", "addr", addr, "workflow_dir", cfg.WorkflowDir(dir))
	fmt.Printf("Serving workflows from %s on http://%s\n", cfg.WorkflowDir(dir), addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http service: %w", err)
	}

	// Let in-flight executions finish before exiting.
	svc.Wait()
	return nil
}
