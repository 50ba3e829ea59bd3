// Package agent bridges workflow execution to an autonomous browser agent.
// The Agent interface is the external surface (an LLM-driven browser agent
// supplied by the embedding application); Delegate wraps it with the prompt
// framing and budget rules workflow steps need.
package agent

import (
	"context"
	"log/slog"

	"github.com/yuefengz/workflow-use/internal/browser"
	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/types"
)

// Agent runs a natural-language browser task, bounded by maxSteps agent
// actions, and reports the ordered history of what it did. The agent acts
// on sess, the run's live browser session, so its work lands on the same
// page state the deterministic steps built up. Exhausting the budget is
// not an error; the history's Done flag records whether the task
// completed.
type Agent interface {
	Run(ctx context.Context, sess browser.Session, task string, maxSteps int) (*types.AgentHistory, error)
}

// Delegate hands workflow steps to an agent. The zero value is an
// unconfigured delegate; Configured reports whether runs can be delegated.
type Delegate struct {
	agent  Agent
	logger *slog.Logger

	// fallbackBudget bounds recovery runs. Zero means
	// types.DefaultAgentMaxSteps.
	fallbackBudget int
}

// NewDelegate wraps an agent. Passing a nil agent yields an unconfigured
// delegate, which is valid; callers check Configured before delegating.
func NewDelegate(a Agent, fallbackBudget int, logger *slog.Logger) *Delegate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Delegate{agent: a, fallbackBudget: fallbackBudget, logger: logger}
}

// Configured reports whether an agent is available for delegation.
func (d *Delegate) Configured() bool {
	return d != nil && d.agent != nil
}

// RunStep executes an agentic workflow step on the run's session. The step
// must be resolved and of type agent.
func (d *Delegate) RunStep(ctx context.Context, sess browser.Session, steps []types.Step, stepIndex int, step *types.Step) (*types.AgentHistory, error) {
	if step.Agent == nil {
		return nil, werrors.ActionBadStep(string(step.Type))
	}
	task := AgenticStepPrompt(steps, stepIndex, step.Agent.Task)
	d.logger.Info("delegating agentic step", "step", stepIndex+1, "max_steps", step.Agent.Budget())
	return d.run(ctx, sess, task, step.Agent.Budget())
}

// Recover delegates a failed deterministic step to the agent with the full
// failure context. The agent receives the same session the step failed on.
func (d *Delegate) Recover(ctx context.Context, sess browser.Session, steps []types.Step, stepIndex int, step *types.Step, cause error) (*types.AgentHistory, error) {
	task := FallbackPrompt(steps, stepIndex, step, cause)
	budget := d.fallbackBudget
	if budget <= 0 {
		budget = types.DefaultAgentMaxSteps
	}
	d.logger.Info("delegating failed step to agent",
		"step", stepIndex+1, "action", string(step.Type), "max_steps", budget)
	d.logger.Debug("fallback task", "task", task)
	return d.run(ctx, sess, task, budget)
}

func (d *Delegate) run(ctx context.Context, sess browser.Session, task string, maxSteps int) (*types.AgentHistory, error) {
	if !d.Configured() {
		return nil, werrors.AgentNotConfigured("no agent attached to this delegate")
	}
	history, err := d.agent.Run(ctx, sess, task, maxSteps)
	if err != nil {
		return nil, werrors.AgentFailed(err)
	}
	if history == nil {
		history = &types.AgentHistory{}
	}
	return history, nil
}
