package testutil

import (
	"context"
	"sync"

	"github.com/yuefengz/workflow-use/internal/browser"
	"github.com/yuefengz/workflow-use/internal/types"
)

// ScriptedAgent plays back pre-configured agent histories. Each Run call
// consumes the next entry from Histories; when the script runs out the
// last entry repeats.
type ScriptedAgent struct {
	mu sync.Mutex

	Histories []*types.AgentHistory
	RunErr    error

	// OnRun, when set, is called with the live session before the scripted
	// history is returned. Tests use it to act on the session the way a
	// real agent would.
	OnRun func(ctx context.Context, sess browser.Session)

	// Recorded calls
	Tasks    []string
	MaxSteps []int
	Sessions []browser.Session
	calls    int
}

// NewScriptedAgent creates an agent that answers every task with the given
// histories in order.
func NewScriptedAgent(histories ...*types.AgentHistory) *ScriptedAgent {
	return &ScriptedAgent{Histories: histories}
}

// DoneAgent returns an agent whose every run completes successfully with
// the given extracted content.
func DoneAgent(content string) *ScriptedAgent {
	return NewScriptedAgent(&types.AgentHistory{
		Done: true,
		Items: []types.AgentHistoryItem{
			{Results: []types.ActionResult{{ExtractedContent: content, Success: true, IsDone: true}}},
		},
	})
}

// ExhaustedAgent returns an agent that burns its step budget without
// completing its task.
func ExhaustedAgent() *ScriptedAgent {
	return NewScriptedAgent(&types.AgentHistory{
		Done: false,
		Items: []types.AgentHistoryItem{
			{Results: []types.ActionResult{{Success: false}}},
		},
	})
}

func (a *ScriptedAgent) Run(ctx context.Context, sess browser.Session, task string, maxSteps int) (*types.AgentHistory, error) {
	a.mu.Lock()

	a.Tasks = append(a.Tasks, task)
	a.MaxSteps = append(a.MaxSteps, maxSteps)
	a.Sessions = append(a.Sessions, sess)
	onRun := a.OnRun
	a.mu.Unlock()

	if onRun != nil {
		onRun(ctx, sess)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.RunErr != nil {
		return nil, a.RunErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(a.Histories) == 0 {
		return &types.AgentHistory{}, nil
	}

	idx := a.calls
	if idx >= len(a.Histories) {
		idx = len(a.Histories) - 1
	}
	a.calls++
	return a.Histories[idx], nil
}

// CallCount returns how many times Run was invoked.
func (a *ScriptedAgent) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
