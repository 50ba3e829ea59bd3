package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yuefengz/workflow-use/internal/config"
	"github.com/yuefengz/workflow-use/internal/controller"
	"github.com/yuefengz/workflow-use/internal/testutil"
	"github.com/yuefengz/workflow-use/internal/types"
)

func testDefinition() *types.Definition {
	return &types.Definition{
		Name:    "checkout",
		Version: "1.0",
		InputSchema: []types.InputDef{
			{Name: "query", Type: types.InputString, Required: true},
			{Name: "limit", Type: types.InputNumber},
			{Name: "headless", Type: types.InputBool},
		},
	}
}

func TestParseInputs(t *testing.T) {
	def := testDefinition()

	t.Run("coerces declared types", func(t *testing.T) {
		inputs, err := parseInputs(def, []string{"query=shoes", "limit=25", "headless=true"})
		if err != nil {
			t.Fatalf("parseInputs: %v", err)
		}
		if inputs["query"] != "shoes" {
			t.Errorf("query = %v", inputs["query"])
		}
		if inputs["limit"] != 25.0 {
			t.Errorf("limit = %v (%T)", inputs["limit"], inputs["limit"])
		}
		if inputs["headless"] != true {
			t.Errorf("headless = %v", inputs["headless"])
		}
	})

	t.Run("value may contain equals signs", func(t *testing.T) {
		inputs, err := parseInputs(def, []string{"query=a=b=c"})
		if err != nil {
			t.Fatalf("parseInputs: %v", err)
		}
		if inputs["query"] != "a=b=c" {
			t.Errorf("query = %v", inputs["query"])
		}
	})

	t.Run("rejects malformed pairs", func(t *testing.T) {
		if _, err := parseInputs(def, []string{"query"}); err == nil {
			t.Error("expected error for pair without equals")
		}
	})

	t.Run("rejects undeclared names", func(t *testing.T) {
		_, err := parseInputs(def, []string{"nope=1"})
		if err == nil || !strings.Contains(err.Error(), "query") {
			t.Errorf("error = %v, want it to list declared inputs", err)
		}
	})

	t.Run("rejects bad number and bool values", func(t *testing.T) {
		if _, err := parseInputs(def, []string{"limit=abc"}); err == nil {
			t.Error("expected error for non-numeric limit")
		}
		if _, err := parseInputs(def, []string{"headless=maybe"}); err == nil {
			t.Error("expected error for non-bool headless")
		}
	})
}

func TestResolveWorkflowPath(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkflowDir = "workflows"

	existing := filepath.Join(dir, "local.workflow.json")
	if err := os.WriteFile(existing, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("existing path wins", func(t *testing.T) {
		if got := resolveWorkflowPath(cfg, dir, existing); got != existing {
			t.Errorf("got %q", got)
		}
	})

	t.Run("bare name resolves into the workflow dir", func(t *testing.T) {
		want := filepath.Join(dir, "workflows", "checkout.workflow.json")
		if got := resolveWorkflowPath(cfg, dir, "checkout"); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("full file name is not doubled", func(t *testing.T) {
		want := filepath.Join(dir, "workflows", "checkout.workflow.json")
		if got := resolveWorkflowPath(cfg, dir, "checkout.workflow.json"); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
}

func TestNewController(t *testing.T) {
	t.Run("honors configured timeouts", func(t *testing.T) {
		cfg := config.Default()
		cfg.Controller.Timeout = 2500 * time.Millisecond
		cfg.Controller.KeyPressTimeout = 9 * time.Second

		got := newController(cfg, testutil.NewSilentLogger()).Config()
		if got.Timeout != 2500*time.Millisecond {
			t.Errorf("Timeout = %v", got.Timeout)
		}
		if got.KeyPressTimeout != 9*time.Second {
			t.Errorf("KeyPressTimeout = %v", got.KeyPressTimeout)
		}
	})

	t.Run("zero config falls back to controller defaults", func(t *testing.T) {
		cfg := config.Default()
		cfg.Controller = config.ControllerConfig{}

		got := newController(cfg, testutil.NewSilentLogger()).Config()
		if got.Timeout != controller.DefaultTimeout {
			t.Errorf("Timeout = %v", got.Timeout)
		}
		if got.KeyPressTimeout != controller.DefaultKeyPressTimeout {
			t.Errorf("KeyPressTimeout = %v", got.KeyPressTimeout)
		}
	})
}
