package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config invalid: %v", err)
	}
	if cfg.Controller.Timeout != 1000*time.Millisecond {
		t.Errorf("Controller.Timeout = %v", cfg.Controller.Timeout)
	}
	if cfg.Controller.KeyPressTimeout != 5000*time.Millisecond {
		t.Errorf("Controller.KeyPressTimeout = %v", cfg.Controller.KeyPressTimeout)
	}
	if !cfg.Fallback.Enabled {
		t.Error("fallback should default to enabled")
	}
	if cfg.Fallback.MaxSteps != 5 {
		t.Errorf("Fallback.MaxSteps = %d", cfg.Fallback.MaxSteps)
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Addr != Default().Server.Addr {
			t.Errorf("Server.Addr = %q", cfg.Server.Addr)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		contents := `
version = "1"

[paths]
workflow_dir = "/srv/workflows"

[controller]
timeout = 2000000000

[fallback]
enabled = false

[server]
addr = ":9090"

[browser]
command = "workflow-browser --headless"
`
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Paths.WorkflowDir != "/srv/workflows" {
			t.Errorf("WorkflowDir = %q", cfg.Paths.WorkflowDir)
		}
		if cfg.Controller.Timeout != 2*time.Second {
			t.Errorf("Timeout = %v", cfg.Controller.Timeout)
		}
		if cfg.Fallback.Enabled {
			t.Error("fallback should be disabled")
		}
		if cfg.Server.Addr != ":9090" {
			t.Errorf("Addr = %q", cfg.Server.Addr)
		}
		if cfg.Browser.Command != "workflow-browser --headless" {
			t.Errorf("Browser.Command = %q", cfg.Browser.Command)
		}
		if cfg.Agent.Command != "" {
			t.Errorf("Agent.Command = %q, want empty default", cfg.Agent.Command)
		}
		// Untouched sections keep defaults
		if cfg.Paths.RunsDir != Default().Paths.RunsDir {
			t.Errorf("RunsDir = %q", cfg.Paths.RunsDir)
		}
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[paths\nbroken"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty version", func(c *Config) { c.Version = "" }},
		{"empty workflow dir", func(c *Config) { c.Paths.WorkflowDir = "" }},
		{"zero timeout", func(c *Config) { c.Controller.Timeout = 0 }},
		{"zero key press timeout", func(c *Config) { c.Controller.KeyPressTimeout = 0 }},
		{"negative fallback budget", func(c *Config) { c.Fallback.MaxSteps = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.WorkflowDir("/base"); got != "/base/workflows" {
		t.Errorf("WorkflowDir = %q", got)
	}
	cfg.Paths.WorkflowDir = "/abs/workflows"
	if got := cfg.WorkflowDir("/base"); got != "/abs/workflows" {
		t.Errorf("WorkflowDir = %q", got)
	}

	if got := cfg.LogFile("/base"); got != "" {
		t.Errorf("LogFile = %q, want empty when disabled", got)
	}
	cfg.Logging.File = "engine.log"
	if got := cfg.LogFile("/base"); got != "/base/.workflow-use/logs/engine.log" {
		t.Errorf("LogFile = %q", got)
	}
}
