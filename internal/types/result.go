package types

import (
	"time"
)

// StepState represents the lifecycle state of a step during a run.
type StepState string

const (
	StepStatePending    StepState = "pending"    // Not yet reached
	StepStateResolving  StepState = "resolving"  // Placeholders being bound
	StepStateExecuting  StepState = "executing"  // Dispatcher or agent running
	StepStateRecovering StepState = "recovering" // Deterministic failure, agent fallback in flight
	StepStateSucceeded  StepState = "succeeded"  // Terminal success
	StepStateFailed     StepState = "failed"     // Terminal failure
	StepStateCancelled  StepState = "cancelled"  // Run cancelled before/at this step
)

// Valid returns true if this is a recognized step state.
func (s StepState) Valid() bool {
	switch s {
	case StepStatePending, StepStateResolving, StepStateExecuting,
		StepStateRecovering, StepStateSucceeded, StepStateFailed, StepStateCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if this state is final.
func (s StepState) IsTerminal() bool {
	return s == StepStateSucceeded || s == StepStateFailed || s == StepStateCancelled
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s StepState) CanTransitionTo(target StepState) bool {
	switch s {
	case StepStatePending:
		return target == StepStateResolving || target == StepStateCancelled
	case StepStateResolving:
		return target == StepStateExecuting || target == StepStateCancelled
	case StepStateExecuting:
		return target == StepStateSucceeded || target == StepStateFailed ||
			target == StepStateRecovering || target == StepStateCancelled
	case StepStateRecovering:
		return target == StepStateSucceeded || target == StepStateFailed || target == StepStateCancelled
	case StepStateSucceeded, StepStateFailed, StepStateCancelled:
		return false // Terminal states
	}
	return false
}

// ActionResult is the uniform outcome of one deterministic browser action.
type ActionResult struct {
	ExtractedContent string `json:"extracted_content,omitempty" yaml:"extracted_content,omitempty"`
	Error            string `json:"error,omitempty" yaml:"error,omitempty"`
	Success          bool   `json:"success" yaml:"success"`
	IsDone           bool   `json:"is_done" yaml:"is_done"`

	// SelectorUsed records which resolution strategy located the element,
	// for diagnostics. Empty for actions without element resolution.
	SelectorUsed string `json:"selector_used,omitempty" yaml:"selector_used,omitempty"`
}

// AgentHistoryItem records one iteration of an agent's loop: the results
// of whatever actions it invoked during that iteration.
type AgentHistoryItem struct {
	Results []ActionResult `json:"results" yaml:"results"`
}

// AgentHistory is the opaque, ordered record of an agent delegate run.
type AgentHistory struct {
	Items []AgentHistoryItem `json:"items" yaml:"items"`

	// Done is true if the agent signalled completion before exhausting
	// its step budget. A false Done is a normal terminal state, not an
	// error.
	Done bool `json:"done" yaml:"done"`
}

// LastContent scans backward through the final item's results for the
// last non-empty extracted content. Returns "" if none.
func (h *AgentHistory) LastContent() string {
	if h == nil || len(h.Items) == 0 {
		return ""
	}
	last := h.Items[len(h.Items)-1]
	for i := len(last.Results) - 1; i >= 0; i-- {
		if last.Results[i].ExtractedContent != "" {
			return last.Results[i].ExtractedContent
		}
	}
	return ""
}

// StepResult is the terminal record of one step's execution. One entry
// per step regardless of recovery path.
type StepResult struct {
	Index       int       `json:"index" yaml:"index"`
	Type        StepType  `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	State       StepState `json:"state" yaml:"state"`

	// Recovered is true if the step failed deterministically and was
	// completed by agent fallback.
	Recovered bool `json:"recovered,omitempty" yaml:"recovered,omitempty"`

	// Exactly one of Action/Agent is set for succeeded steps: Action for
	// dispatcher results, Agent for agentic steps and fallback runs.
	Action *ActionResult `json:"action,omitempty" yaml:"action,omitempty"`
	Agent  *AgentHistory `json:"agent,omitempty" yaml:"agent,omitempty"`

	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	DoneAt    time.Time `json:"done_at" yaml:"done_at"`
}

// RunStatus represents the lifecycle state of a whole run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if this status is final.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// RunRecord is the persisted record of one workflow run: the partial or
// complete list of step results plus the terminating error, if any.
type RunRecord struct {
	ID        string       `json:"id" yaml:"id"`
	Workflow  string       `json:"workflow" yaml:"workflow"`
	Version   string       `json:"version" yaml:"version"`
	Status    RunStatus    `json:"status" yaml:"status"`
	Steps     []StepResult `json:"steps" yaml:"steps"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt time.Time    `json:"started_at" yaml:"started_at"`
	DoneAt    *time.Time   `json:"done_at,omitempty" yaml:"done_at,omitempty"`
}

// Complete marks the run as finished with the given status.
func (r *RunRecord) Complete(status RunStatus) {
	now := time.Now()
	r.Status = status
	r.DoneAt = &now
}
