package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yuefengz/workflow-use/internal/types"
)

// SampleDefinition returns a small but representative workflow: a templated
// navigation, two element interactions and a trailing agentic step that
// captures output.
func SampleDefinition() *types.Definition {
	return &types.Definition{
		Name:        "search-products",
		Description: "Search the catalog and capture the first price",
		Version:     "1.0",
		InputSchema: []types.InputDef{
			{Name: "query", Type: types.InputString, Required: true},
		},
		Steps: []types.Step{
			{
				Type:        types.StepNavigation,
				Description: "Open the catalog",
				Navigation:  &types.NavigationConfig{URL: "https://shop.example.com/search?q={query}"},
			},
			{
				Type:        types.StepInput,
				Description: "Type the query",
				Input: &types.InputConfig{
					CSSSelector: "#search",
					ElementTag:  "input",
					Value:       "{query}",
				},
			},
			{
				Type:        types.StepClick,
				Description: "Submit the search",
				Click: &types.ClickConfig{
					CSSSelector: "button.submit",
					ElementText: "Search",
				},
			},
			{
				Type:        types.StepAgent,
				Description: "Read the first result price",
				Output:      "price",
				Agent:       &types.AgentConfig{Task: "Extract the price of the first result"},
			},
		},
	}
}

// WriteFile writes contents to dir/name and fails the test on error.
func WriteFile(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
