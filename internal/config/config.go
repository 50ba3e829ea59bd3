// Package config loads TOML configuration for the workflow engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// PathsConfig holds path configuration.
type PathsConfig struct {
	WorkflowDir string `toml:"workflow_dir"` // Where *.workflow.json files live
	RunsDir     string `toml:"runs_dir"`     // Where run records are persisted
	LogsDir     string `toml:"logs_dir"`
}

// ControllerConfig tunes deterministic action dispatch.
type ControllerConfig struct {
	Timeout         time.Duration `toml:"timeout"`           // Element resolution timeout
	KeyPressTimeout time.Duration `toml:"key_press_timeout"` // Longer, pages settle after transitions
}

// FallbackConfig controls agent recovery of failed deterministic steps.
type FallbackConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSteps int  `toml:"max_steps"` // Agent step budget per recovery
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"` // Relative to logs_dir unless absolute
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// BrowserConfig names the external browser backend. The command speaks
// the bridge protocol on stdin/stdout and is started once per session.
type BrowserConfig struct {
	Command string `toml:"command"`
}

// AgentConfig names the external agent backend, started once per task.
type AgentConfig struct {
	Command string `toml:"command"`
}

// Config is the main configuration struct.
type Config struct {
	Version    string           `toml:"version"`
	Paths      PathsConfig      `toml:"paths"`
	Controller ControllerConfig `toml:"controller"`
	Fallback   FallbackConfig   `toml:"fallback"`
	Logging    LoggingConfig    `toml:"logging"`
	Server     ServerConfig     `toml:"server"`
	Browser    BrowserConfig    `toml:"browser"`
	Agent      AgentConfig      `toml:"agent"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Paths: PathsConfig{
			WorkflowDir: "./workflows",
			RunsDir:     ".workflow-use/runs",
			LogsDir:     ".workflow-use/logs",
		},
		Controller: ControllerConfig{
			Timeout:         1000 * time.Millisecond,
			KeyPressTimeout: 5000 * time.Millisecond,
		},
		Fallback: FallbackConfig{
			Enabled:  true,
			MaxSteps: 5,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
			File:   "",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8000",
		},
	}
}

// Load loads configuration from file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from the standard locations in a directory.
// Applies in order: defaults -> ~/.workflow-use/config.toml ->
// <dir>/.workflow-use/config.toml. Later configs override earlier ones.
func LoadFromDir(dir string) (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(home, ".workflow-use", "config.toml")
		if data, err := os.ReadFile(globalConfig); err == nil {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	projectConfig := filepath.Join(dir, ".workflow-use", "config.toml")
	if data, err := os.ReadFile(projectConfig); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing project config: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version is required")
	}
	if c.Paths.WorkflowDir == "" {
		return fmt.Errorf("workflow_dir is required")
	}
	if c.Controller.Timeout <= 0 {
		return fmt.Errorf("controller timeout must be positive")
	}
	if c.Controller.KeyPressTimeout <= 0 {
		return fmt.Errorf("key_press_timeout must be positive")
	}
	if c.Fallback.MaxSteps < 0 {
		return fmt.Errorf("fallback max_steps must not be negative")
	}
	return nil
}

// WorkflowDir returns the absolute workflow directory path.
func (c *Config) WorkflowDir(baseDir string) string {
	if filepath.IsAbs(c.Paths.WorkflowDir) {
		return c.Paths.WorkflowDir
	}
	return filepath.Join(baseDir, c.Paths.WorkflowDir)
}

// RunsDir returns the absolute runs directory path.
func (c *Config) RunsDir(baseDir string) string {
	if filepath.IsAbs(c.Paths.RunsDir) {
		return c.Paths.RunsDir
	}
	return filepath.Join(baseDir, c.Paths.RunsDir)
}

// LogFile returns the absolute log file path, or "" when file logging is
// disabled.
func (c *Config) LogFile(baseDir string) string {
	if c.Logging.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Logging.File) {
		return c.Logging.File
	}
	logsDir := c.Paths.LogsDir
	if !filepath.IsAbs(logsDir) {
		logsDir = filepath.Join(baseDir, logsDir)
	}
	return filepath.Join(logsDir, c.Logging.File)
}
