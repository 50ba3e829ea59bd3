// Package mcp exposes workflow documents as MCP tools. Every
// *.workflow.json file in the workflow directory becomes one tool whose
// arguments mirror the workflow's input schema; invoking the tool runs
// the workflow and returns its step results as JSON.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/yuefengz/workflow-use/internal/agent"
	"github.com/yuefengz/workflow-use/internal/browser"
	"github.com/yuefengz/workflow-use/internal/controller"
	"github.com/yuefengz/workflow-use/internal/logging"
	"github.com/yuefengz/workflow-use/internal/schema"
	"github.com/yuefengz/workflow-use/internal/types"
	"github.com/yuefengz/workflow-use/internal/workflow"
)

const (
	serverName    = "workflow-use"
	serverVersion = "0.1.0"
)

// Options configures the MCP server.
type Options struct {
	// WorkflowDir is scanned for *.workflow.json files at startup.
	WorkflowDir string

	// Driver opens browser sessions for tool invocations. Required.
	Driver browser.Driver

	// Controller dispatches deterministic steps. Optional.
	Controller *controller.Controller

	// Delegate runs agentic steps and fallback recoveries. Optional.
	Delegate *agent.Delegate

	// FallbackEnabled routes failed deterministic steps to the delegate.
	FallbackEnabled bool

	Logger *slog.Logger
}

// Server wraps an MCP server with one tool per loaded workflow.
type Server struct {
	opts   Options
	logger *slog.Logger
	mcp    *server.MCPServer
	tools  []string
}

// New scans the workflow directory and registers a tool per document.
// Files that fail to load are skipped with a warning so one broken
// workflow does not take down the rest.
func New(opts Options) (*Server, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("browser driver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefault()
	}

	s := &Server{
		opts:   opts,
		logger: logger,
		mcp: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(true),
		),
	}

	paths, err := filepath.Glob(filepath.Join(opts.WorkflowDir, "*"+schema.WorkflowExt))
	if err != nil {
		return nil, fmt.Errorf("scan workflow dir: %w", err)
	}
	for _, path := range paths {
		def, err := schema.LoadFile(path)
		if err != nil {
			logger.Warn("skipping workflow", "path", path, "error", err)
			continue
		}
		tool := newTool(def)
		s.mcp.AddTool(tool, s.runHandler(def))
		s.tools = append(s.tools, tool.Name)
		logger.Info("registered workflow tool",
			"tool", tool.Name, "workflow", def.Name, "inputs", len(def.InputSchema))
	}
	return s, nil
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// ServeStdio runs the MCP server over stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// newTool builds the tool declaration for a workflow: name and version
// form the tool name, the input schema becomes typed tool arguments.
func newTool(def *types.Definition) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(def.Description)}
	for _, in := range def.InputSchema {
		var propOpts []mcp.PropertyOption
		if in.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		switch in.Type {
		case types.InputNumber:
			opts = append(opts, mcp.WithNumber(in.Name, propOpts...))
		case types.InputBool:
			opts = append(opts, mcp.WithBoolean(in.Name, propOpts...))
		default:
			opts = append(opts, mcp.WithString(in.Name, propOpts...))
		}
	}
	return mcp.NewTool(toolName(def), opts...)
}

// toolName derives a stable tool identifier from a workflow's name and
// version, collapsing anything outside [a-zA-Z0-9_-] to underscores.
func toolName(def *types.Definition) string {
	mangle := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			default:
				return '_'
			}
		}, s)
	}
	return mangle(def.Name) + "_" + mangle(def.Version)
}

// runHandler returns the tool handler that executes one workflow. Each
// invocation gets a fresh Workflow so run context never leaks between
// calls.
func (s *Server) runHandler(def *types.Definition) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inputs := toolInputs(def, req)

		wf, err := workflow.New(def, workflow.Options{
			Driver:          s.opts.Driver,
			Controller:      s.opts.Controller,
			Delegate:        s.opts.Delegate,
			FallbackEnabled: s.opts.FallbackEnabled,
			Logger:          s.logger,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		record, err := wf.Run(ctx, inputs)
		if err != nil {
			return mcp.NewToolResultError(
				fmt.Sprintf("workflow %q failed: %v", def.Name, err)), nil
		}

		data, err := json.Marshal(record.Steps)
		if err != nil {
			return mcp.NewToolResultError(
				fmt.Sprintf("encode results for %q: %v", def.Name, err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// toolInputs picks the declared inputs out of the call arguments.
// Undeclared arguments are dropped; validation of the rest happens in
// the workflow itself.
func toolInputs(def *types.Definition, req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	inputs := make(map[string]any, len(def.InputSchema))
	for _, in := range def.InputSchema {
		if v, ok := args[in.Name]; ok {
			inputs[in.Name] = v
		}
	}
	return inputs
}
