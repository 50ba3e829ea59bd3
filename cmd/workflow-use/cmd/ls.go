package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuefengz/workflow-use/internal/schema"
	"github.com/yuefengz/workflow-use/internal/workflow"
)

var (
	lsRuns bool
	lsJSON bool
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List workflows in this project",
	Long: `List the *.workflow.json files in the configured workflow directory.

Use --runs to list persisted run records instead.`,
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVar(&lsRuns, "runs", false, "list run records instead of workflows")
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	if lsRuns {
		return listRuns(cfg.RunsDir(dir))
	}
	return listWorkflows(cfg.WorkflowDir(dir))
}

func listWorkflows(workflowDir string) error {
	paths, err := filepath.Glob(filepath.Join(workflowDir, "*"+schema.WorkflowExt))
	if err != nil {
		return fmt.Errorf("listing workflows: %w", err)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		fmt.Println("No workflows found.")
		fmt.Println()
		fmt.Printf("Add *%s files to %s to get started.\n", schema.WorkflowExt, workflowDir)
		return nil
	}

	type workflowInfo struct {
		File        string `json:"file"`
		Name        string `json:"name"`
		Version     string `json:"version"`
		Steps       int    `json:"steps"`
		Inputs      int    `json:"inputs"`
		Description string `json:"description"`
	}

	infos := make([]workflowInfo, 0, len(paths))
	for _, path := range paths {
		def, err := schema.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", filepath.Base(path), err)
			continue
		}
		infos = append(infos, workflowInfo{
			File:        filepath.Base(path),
			Name:        def.Name,
			Version:     def.Version,
			Steps:       len(def.Steps),
			Inputs:      len(def.InputSchema),
			Description: def.Description,
		})
	}

	if lsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tSTEPS\tINPUTS\tDESCRIPTION")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			info.Name, info.Version, info.Steps, info.Inputs, info.Description)
	}
	return w.Flush()
}

func listRuns(runsDir string) error {
	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		fmt.Println("No runs found.")
		return nil
	}

	store, err := workflow.NewRunStore(runsDir)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	records, err := store.List()
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	if lsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tSTARTED\tSTEPS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Workflow, r.Status, r.StartedAt.Format(time.DateTime), len(r.Steps))
	}
	return w.Flush()
}
