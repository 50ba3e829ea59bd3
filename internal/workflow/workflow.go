// Package workflow executes workflow definitions: strict step sequencing,
// placeholder resolution against the run context, deterministic dispatch
// with agent fallback, and output capture for later steps.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yuefengz/workflow-use/internal/agent"
	"github.com/yuefengz/workflow-use/internal/browser"
	"github.com/yuefengz/workflow-use/internal/controller"
	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/logging"
	"github.com/yuefengz/workflow-use/internal/template"
	"github.com/yuefengz/workflow-use/internal/types"
)

// Options configures a Workflow.
type Options struct {
	// Driver opens browser sessions. Required.
	Driver browser.Driver

	// Controller dispatches deterministic steps. Defaults to a controller
	// with default timeouts.
	Controller *controller.Controller

	// Delegate runs agentic steps and fallback recoveries. Optional; a
	// workflow without agentic steps runs fine without one, but fallback
	// and agent steps then abort the run.
	Delegate *agent.Delegate

	// FallbackEnabled routes failed deterministic steps to the delegate
	// instead of aborting.
	FallbackEnabled bool

	Logger *slog.Logger
}

// Workflow binds a validated definition to its collaborators and executes
// it. A Workflow carries run state (the placeholder context); use one
// instance per logical run.
type Workflow struct {
	def      *types.Definition
	driver   browser.Driver
	ctrl     *controller.Controller
	delegate *agent.Delegate
	fallback bool
	logger   *slog.Logger

	mu     sync.Mutex
	runCtx *template.Context
}

// New creates a workflow executor for a definition.
func New(def *types.Definition, opts Options) (*Workflow, error) {
	if def == nil {
		return nil, fmt.Errorf("workflow definition is required")
	}
	if opts.Driver == nil {
		return nil, fmt.Errorf("browser driver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefault()
	}
	ctrl := opts.Controller
	if ctrl == nil {
		ctrl = controller.New(controller.Config{}, logger)
	}
	return &Workflow{
		def:      def,
		driver:   opts.Driver,
		ctrl:     ctrl,
		delegate: opts.Delegate,
		fallback: opts.FallbackEnabled,
		logger:   logging.WithWorkflow(logger, def.Name),
	}, nil
}

// Definition returns the workflow's definition.
func (w *Workflow) Definition() *types.Definition {
	return w.def
}

// Context returns a snapshot of the current run context.
func (w *Workflow) Context() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.runCtx == nil {
		return map[string]any{}
	}
	return w.runCtx.Snapshot()
}

// Run executes every step in order. Inputs are validated eagerly, before
// any browser work. The returned record carries one result per executed
// step; on failure or cancellation it is partial and the terminating error
// is returned alongside it.
func (w *Workflow) Run(ctx context.Context, inputs map[string]any) (*types.RunRecord, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	if err := w.def.ValidateInputs(inputs); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.runCtx = template.NewContextFrom(inputs)
	w.mu.Unlock()

	record := &types.RunRecord{
		ID:        uuid.NewString(),
		Workflow:  w.def.Name,
		Version:   w.def.Version,
		Status:    types.RunStatusRunning,
		StartedAt: time.Now(),
	}
	logger := logging.WithRun(w.logger, record.ID)

	sess, err := w.driver.Open(ctx)
	if err != nil {
		werr := werrors.InfraBrowser("open", err)
		record.Error = werr.Error()
		record.Complete(types.RunStatusFailed)
		return record, werr
	}
	defer w.closeSession(sess)

	for i := range w.def.Steps {
		if ctx.Err() != nil {
			cerr := werrors.Cancelled(i)
			record.Steps = append(record.Steps, cancelledResult(i, &w.def.Steps[i], cerr))
			record.Error = cerr.Error()
			record.Complete(types.RunStatusCancelled)
			return record, cerr
		}

		logger.Info("running step",
			"step", i+1, "total", len(w.def.Steps), "description", w.def.Steps[i].Description)

		sr, err := w.executeStep(ctx, sess, i)
		record.Steps = append(record.Steps, *sr)
		if err != nil {
			record.Error = sr.Error
			if sr.State == types.StepStateCancelled {
				record.Complete(types.RunStatusCancelled)
			} else {
				record.Complete(types.RunStatusFailed)
			}
			return record, err
		}
	}

	record.Complete(types.RunStatusSucceeded)
	return record, nil
}

// RunStep executes a single step by zero-based index. Inputs are validated
// and installed on the first invocation; later invocations reuse the
// accumulated context, merging any inputs passed explicitly. Each call
// opens and releases its own browser session.
func (w *Workflow) RunStep(ctx context.Context, index int, inputs map[string]any) (*types.StepResult, error) {
	if index < 0 || index >= len(w.def.Steps) {
		return nil, werrors.Newf(werrors.CodeSchemaInvalidValue,
			"step index %d out of range: workflow has %d steps", index, len(w.def.Steps)).
			WithDetail("step_index", index)
	}

	w.mu.Lock()
	if w.runCtx == nil || inputs != nil {
		runtime := inputs
		if runtime == nil {
			runtime = map[string]any{}
		}
		if err := w.def.ValidateInputs(runtime); err != nil {
			w.mu.Unlock()
			return nil, err
		}
		if w.runCtx == nil {
			w.runCtx = template.NewContextFrom(runtime)
		} else {
			w.runCtx.Merge(runtime)
		}
	}
	w.mu.Unlock()

	sess, err := w.driver.Open(ctx)
	if err != nil {
		return nil, werrors.InfraBrowser("open", err)
	}
	defer w.closeSession(sess)

	return w.executeStep(ctx, sess, index)
}

// executeStep drives one step through its lifecycle. The returned error is
// non-nil exactly when the step ends failed or cancelled.
func (w *Workflow) executeStep(ctx context.Context, sess browser.Session, index int) (*types.StepResult, error) {
	step := &w.def.Steps[index]
	logger := logging.WithStep(w.logger, index+1, string(step.Type))

	sr := &types.StepResult{
		Index:       index,
		Type:        step.Type,
		Description: step.Description,
		State:       types.StepStatePending,
		StartedAt:   time.Now(),
	}

	sr.State = types.StepStateResolving
	w.mu.Lock()
	if w.runCtx == nil {
		w.runCtx = template.NewContext()
	}
	resolved, missing := w.runCtx.ResolveStep(step)
	w.mu.Unlock()
	if len(missing) > 0 {
		logger.Warn("unresolved placeholders, keeping literal text", "names", missing)
	}

	sr.State = types.StepStateExecuting

	if step.Type == types.StepAgent {
		return w.executeAgentStep(ctx, sess, index, resolved, sr, logger)
	}

	action, err := w.ctrl.Dispatch(ctx, sess, resolved)
	if err == nil && action.Error != "" {
		// A dispatcher can report a soft failure inside the result.
		err = werrors.ActionFailed(string(step.Type), resolved.Selector(),
			fmt.Errorf("%s", action.Error))
	}
	if err == nil {
		sr.Action = action
		sr.State = types.StepStateSucceeded
		w.storeOutput(resolved, sr, logger)
		sr.DoneAt = time.Now()
		return sr, nil
	}

	if ctx.Err() != nil {
		return w.cancelStep(index, sr), werrors.Cancelled(index)
	}

	logger.Warn("deterministic step failed", "error", err)

	if !w.fallback {
		return w.failStep(sr, err), err
	}
	if !w.delegate.Configured() {
		aerr := werrors.AgentNotConfigured("fallback for failed step needs an agent").WithCause(err)
		return w.failStep(sr, aerr), aerr
	}

	sr.State = types.StepStateRecovering
	history, rerr := w.delegate.Recover(ctx, sess, w.def.Steps, index, resolved, err)
	if rerr != nil {
		if ctx.Err() != nil {
			return w.cancelStep(index, sr), werrors.Cancelled(index)
		}
		return w.failStep(sr, rerr), rerr
	}

	logger.Info("step recovered by agent", "agent_done", history.Done)
	sr.Agent = history
	sr.Recovered = true
	// Keep the deterministic failure for diagnostics even though the
	// step ultimately succeeded.
	sr.Error = err.Error()
	sr.State = types.StepStateSucceeded
	w.storeOutput(resolved, sr, logger)
	sr.DoneAt = time.Now()
	return sr, nil
}

func (w *Workflow) executeAgentStep(ctx context.Context, sess browser.Session, index int, resolved *types.Step, sr *types.StepResult, logger *slog.Logger) (*types.StepResult, error) {
	if !w.delegate.Configured() {
		err := werrors.AgentNotConfigured("workflow contains an agentic step")
		return w.failStep(sr, err), err
	}

	history, err := w.delegate.RunStep(ctx, sess, w.def.Steps, index, resolved)
	if err != nil {
		if ctx.Err() != nil {
			return w.cancelStep(index, sr), werrors.Cancelled(index)
		}
		return w.failStep(sr, err), err
	}

	sr.Agent = history
	sr.State = types.StepStateSucceeded
	w.storeOutput(resolved, sr, logger)
	sr.DoneAt = time.Now()
	return sr, nil
}

// storeOutput persists the step's result under its output key, if any.
// Called exactly once per succeeded step, with the resolved step so the
// key itself may have been templated.
func (w *Workflow) storeOutput(resolved *types.Step, sr *types.StepResult, logger *slog.Logger) {
	if resolved.Output == "" {
		return
	}
	var value any
	var ok bool
	if sr.Agent != nil {
		value, ok = ExtractAgentOutput(sr.Agent)
	} else {
		value, ok = ExtractActionOutput(sr.Action)
	}
	if !ok {
		logger.Warn("step declared an output but produced no content", "output", resolved.Output)
		return
	}
	w.mu.Lock()
	w.runCtx.Set(resolved.Output, value)
	w.mu.Unlock()
	logger.Debug("stored step output", "output", resolved.Output)
}

func (w *Workflow) failStep(sr *types.StepResult, err error) *types.StepResult {
	sr.State = types.StepStateFailed
	sr.Error = err.Error()
	sr.DoneAt = time.Now()
	return sr
}

func (w *Workflow) cancelStep(index int, sr *types.StepResult) *types.StepResult {
	cerr := werrors.Cancelled(index)
	sr.State = types.StepStateCancelled
	sr.Error = cerr.Error()
	sr.DoneAt = time.Now()
	return sr
}

// closeSession releases the browser session even when the run context is
// already cancelled.
func (w *Workflow) closeSession(sess browser.Session) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		w.logger.Warn("closing browser session", "error", err)
	}
}

func cancelledResult(index int, step *types.Step, cerr error) types.StepResult {
	now := time.Now()
	return types.StepResult{
		Index:       index,
		Type:        step.Type,
		Description: step.Description,
		State:       types.StepStateCancelled,
		Error:       cerr.Error(),
		StartedAt:   now,
		DoneAt:      now,
	}
}
