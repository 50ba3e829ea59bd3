package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/yuefengz/workflow-use/internal/browser"
	"github.com/yuefengz/workflow-use/internal/types"
)

// AgentRunner runs agent tasks by spawning a backend process per task.
// The process receives one agent_run request on stdin and must answer
// with one agent_result line before exiting.
type AgentRunner struct {
	command string
	logger  *slog.Logger
}

// NewAgentRunner creates a runner for the given backend command.
func NewAgentRunner(command string, logger *slog.Logger) *AgentRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentRunner{command: command, logger: logger}
}

// Run executes one agent task against sess, the run's browser session.
// When the session is bridge-backed its attach handle travels with the
// request, so the agent backend connects to the same browser the
// deterministic steps ran in. Cancelling the context kills the backend
// process.
func (r *AgentRunner) Run(ctx context.Context, sess browser.Session, task string, maxSteps int) (*types.AgentHistory, error) {
	if r.command == "" {
		return nil, fmt.Errorf("no agent bridge command configured")
	}

	handle, err := sessionHandle(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("browser session handle: %w", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", r.command)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("agent bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent bridge stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting agent bridge %q: %w", r.command, err)
	}
	r.logger.Debug("agent bridge started", "command", r.command, "pid", cmd.Process.Pid, "max_steps", maxSteps)

	c := newConn(stdin, stdout)
	resp, err := c.call(ctx, &Request{
		Type:           MsgAgentRun,
		Task:           task,
		MaxSteps:       maxSteps,
		BrowserSession: handle,
	})
	stdin.Close()
	waitErr := cmd.Wait()
	if err != nil {
		return nil, err
	}
	if err := respErr(resp); err != nil {
		return nil, err
	}
	if resp.Type != MsgAgentResult {
		return nil, fmt.Errorf("agent bridge returned %q, want %q", resp.Type, MsgAgentResult)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("agent bridge exited: %w", waitErr)
	}

	return &types.AgentHistory{Items: resp.Items, Done: resp.Done}, nil
}

// sessionHandle asks the session for its attach handle. Sessions that do
// not expose one, such as fakes in tests, yield an empty handle and the
// agent backend opens its own browser.
func sessionHandle(ctx context.Context, sess browser.Session) (string, error) {
	h, ok := sess.(interface {
		Handle(ctx context.Context) (string, error)
	})
	if !ok {
		return "", nil
	}
	return h.Handle(ctx)
}
