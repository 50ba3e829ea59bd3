package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/yuefengz/workflow-use/internal/agent"
	"github.com/yuefengz/workflow-use/internal/browser"
	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/testutil"
	"github.com/yuefengz/workflow-use/internal/types"
)

// populateSample registers the elements the sample workflow interacts with.
func populateSample(sess *testutil.FakeSession) (input, button *testutil.FakeElement) {
	input = &testutil.FakeElement{Tag: "input"}
	button = &testutil.FakeElement{}
	sess.CSS["#search"] = input
	sess.CSS["button.submit"] = button
	return input, button
}

func newWorkflow(t *testing.T, def *types.Definition, driver *testutil.FakeDriver, scripted *testutil.ScriptedAgent, fallback bool) *Workflow {
	t.Helper()
	var delegate *agent.Delegate
	if scripted != nil {
		delegate = agent.NewDelegate(scripted, 0, testutil.NewSilentLogger())
	}
	w, err := New(def, Options{
		Driver:          driver,
		Delegate:        delegate,
		FallbackEnabled: fallback,
		Logger:          testutil.NewSilentLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func TestRun(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		input, button := populateSample(driver.Session)
		scripted := testutil.DoneAgent(`{"amount": 19.99, "currency": "USD"}`)
		w := newWorkflow(t, testutil.SampleDefinition(), driver, scripted, true)

		record, err := w.Run(context.Background(), map[string]any{"query": "wireless mouse"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if record.Status != types.RunStatusSucceeded {
			t.Errorf("Status = %q", record.Status)
		}
		if len(record.Steps) != 4 {
			t.Fatalf("got %d step results, want 4", len(record.Steps))
		}
		for _, sr := range record.Steps {
			if sr.State != types.StepStateSucceeded {
				t.Errorf("step %d state = %q", sr.Index, sr.State)
			}
		}

		// Placeholders resolved before dispatch
		if got := driver.Session.Navigations[0]; got != "https://shop.example.com/search?q=wireless mouse" {
			t.Errorf("navigated to %q", got)
		}
		if input.Filled[0] != "wireless mouse" {
			t.Errorf("filled %q", input.Filled[0])
		}
		if len(button.Clicks) != 1 {
			t.Errorf("clicks = %d", len(button.Clicks))
		}

		// Agent output captured into context, JSON parsed
		rc := w.Context()
		price, ok := rc["price"].(map[string]any)
		if !ok {
			t.Fatalf("price = %#v", rc["price"])
		}
		if price["currency"] != "USD" {
			t.Errorf("currency = %v", price["currency"])
		}

		// Session released
		if !driver.Session.Closed {
			t.Error("session not closed")
		}
	})

	t.Run("validates inputs before opening a session", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		w := newWorkflow(t, testutil.SampleDefinition(), driver, nil, false)

		_, err := w.Run(context.Background(), nil)
		if !werrors.HasCode(err, werrors.CodeInputMissing) {
			t.Fatalf("expected %s, got %v", werrors.CodeInputMissing, err)
		}
		if driver.Opens != 0 {
			t.Error("session opened despite invalid inputs")
		}
	})

	t.Run("agent budget exhaustion still succeeds the step", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		populateSample(driver.Session)
		w := newWorkflow(t, testutil.SampleDefinition(), driver, testutil.ExhaustedAgent(), true)

		record, err := w.Run(context.Background(), map[string]any{"query": "x"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		agentStep := record.Steps[3]
		if agentStep.State != types.StepStateSucceeded {
			t.Errorf("state = %q", agentStep.State)
		}
		if agentStep.Agent == nil || agentStep.Agent.Done {
			t.Errorf("Agent history = %+v, want incomplete", agentStep.Agent)
		}
		// Incomplete run produced no content, so the output key is absent
		if _, ok := w.Context()["price"]; ok {
			t.Error("output stored despite empty agent content")
		}
	})

	t.Run("agentic step without delegate aborts", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		populateSample(driver.Session)
		w := newWorkflow(t, testutil.SampleDefinition(), driver, nil, false)

		record, err := w.Run(context.Background(), map[string]any{"query": "x"})
		if !werrors.HasCode(err, werrors.CodeAgentNotConfigured) {
			t.Fatalf("expected %s, got %v", werrors.CodeAgentNotConfigured, err)
		}
		if record.Status != types.RunStatusFailed {
			t.Errorf("Status = %q", record.Status)
		}
		if len(record.Steps) != 4 {
			t.Errorf("got %d step results, want partial results up to the aborting step", len(record.Steps))
		}
		if record.Steps[3].State != types.StepStateFailed {
			t.Errorf("aborting step state = %q", record.Steps[3].State)
		}
		if !driver.Session.Closed {
			t.Error("session not closed on failure")
		}
	})
}

func TestRunFallback(t *testing.T) {
	t.Run("recovers a failed deterministic step", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		populateSample(driver.Session)
		delete(driver.Session.CSS, "button.submit") // click will miss
		scripted := testutil.DoneAgent("recovered")
		w := newWorkflow(t, testutil.SampleDefinition(), driver, scripted, true)

		record, err := w.Run(context.Background(), map[string]any{"query": "x"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if record.Status != types.RunStatusSucceeded {
			t.Errorf("Status = %q", record.Status)
		}
		clickStep := record.Steps[2]
		if clickStep.State != types.StepStateSucceeded || !clickStep.Recovered {
			t.Errorf("click step = %+v, want recovered success", clickStep)
		}
		if clickStep.Agent == nil {
			t.Error("recovered step should carry the agent history")
		}
		if clickStep.Error == "" {
			t.Error("recovered step should keep the deterministic failure for diagnostics")
		}

		// The recovery run, then the workflow's own agentic step
		if scripted.CallCount() != 2 {
			t.Fatalf("agent runs = %d, want 2", scripted.CallCount())
		}
		if !strings.Contains(scripted.Tasks[0], "This deterministic action 'click'") {
			t.Errorf("fallback task = %q", scripted.Tasks[0])
		}
	})

	t.Run("recovery acts on the run's session", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		populateSample(driver.Session)
		delete(driver.Session.CSS, "button.submit") // click will miss
		scripted := testutil.DoneAgent("recovered")
		scripted.OnRun = func(ctx context.Context, sess browser.Session) {
			// A real agent would drive the page the failed step left
			// behind; do the same and leave a trace.
			sess.Navigate(ctx, "https://shop.example.com/results")
		}
		def := testutil.SampleDefinition()
		def.Steps = def.Steps[:3] // Only the recovery run delegates
		w := newWorkflow(t, def, driver, scripted, true)

		record, err := w.Run(context.Background(), map[string]any{"query": "x"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !record.Steps[2].Recovered {
			t.Fatal("click step not recovered")
		}
		if scripted.Sessions[0] != driver.Session {
			t.Error("agent ran against a different session than the workflow")
		}
		// The agent's navigation must land on the very session the
		// deterministic steps used.
		nav := driver.Session.Navigations
		if len(nav) != 2 || nav[1] != "https://shop.example.com/results" {
			t.Errorf("Navigations = %v, want the agent's navigation recorded", nav)
		}
	})

	t.Run("disabled fallback aborts with partial results", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		populateSample(driver.Session)
		delete(driver.Session.CSS, "button.submit")
		w := newWorkflow(t, testutil.SampleDefinition(), driver, testutil.DoneAgent("unused"), false)

		record, err := w.Run(context.Background(), map[string]any{"query": "x"})
		if !werrors.HasCode(err, werrors.CodeActionElementNotFound) {
			t.Fatalf("expected %s, got %v", werrors.CodeActionElementNotFound, err)
		}
		if record.Status != types.RunStatusFailed {
			t.Errorf("Status = %q", record.Status)
		}
		if len(record.Steps) != 3 {
			t.Errorf("got %d step results, want 3 (two succeeded, one failed)", len(record.Steps))
		}
		if record.Steps[2].State != types.StepStateFailed {
			t.Errorf("failed step state = %q", record.Steps[2].State)
		}
	})

	t.Run("enabled fallback without delegate aborts", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		populateSample(driver.Session)
		delete(driver.Session.CSS, "button.submit")
		def := testutil.SampleDefinition()
		def.Steps = def.Steps[:3] // Drop the agentic step
		w := newWorkflow(t, def, driver, nil, true)

		_, err := w.Run(context.Background(), map[string]any{"query": "x"})
		if !werrors.HasCode(err, werrors.CodeAgentNotConfigured) {
			t.Fatalf("expected %s, got %v", werrors.CodeAgentNotConfigured, err)
		}
	})
}

func TestRunCancellation(t *testing.T) {
	t.Run("cancelled before first step", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		populateSample(driver.Session)
		w := newWorkflow(t, testutil.SampleDefinition(), driver, nil, false)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		record, err := w.Run(ctx, map[string]any{"query": "x"})
		if !werrors.IsCancelled(err) {
			t.Fatalf("expected cancellation, got %v", err)
		}
		if record.Status != types.RunStatusCancelled {
			t.Errorf("Status = %q", record.Status)
		}
		if len(record.Steps) != 1 || record.Steps[0].State != types.StepStateCancelled {
			t.Errorf("Steps = %+v", record.Steps)
		}
		if driver.Session.CloseCalls == 0 {
			t.Error("session not released on cancellation")
		}
	})

	t.Run("cancelled mid-run halts before the next step", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		_, button := populateSample(driver.Session)
		scripted := testutil.DoneAgent("unused")
		w := newWorkflow(t, testutil.SampleDefinition(), driver, scripted, true)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		// The click of step 3 lands, then the run is cancelled.
		button.OnClick = cancel

		record, err := w.Run(ctx, map[string]any{"query": "x"})
		if !werrors.IsCancelled(err) {
			t.Fatalf("expected cancellation, got %v", err)
		}
		if record.Status != types.RunStatusCancelled {
			t.Errorf("Status = %q", record.Status)
		}
		if len(record.Steps) != 4 {
			t.Fatalf("got %d step results, want 4", len(record.Steps))
		}
		for i := 0; i < 3; i++ {
			if record.Steps[i].State != types.StepStateSucceeded {
				t.Errorf("step %d state = %q, want completed before cancellation", i, record.Steps[i].State)
			}
		}
		if record.Steps[3].State != types.StepStateCancelled {
			t.Errorf("step 4 state = %q, want cancelled", record.Steps[3].State)
		}
		// The agentic step must never start.
		if scripted.CallCount() != 0 {
			t.Errorf("agent runs = %d, want 0 after cancellation", scripted.CallCount())
		}
		if driver.Session.CloseCalls == 0 {
			t.Error("session not released on cancellation")
		}
	})
}

func TestRunStep(t *testing.T) {
	t.Run("single step with inputs", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		populateSample(driver.Session)
		w := newWorkflow(t, testutil.SampleDefinition(), driver, nil, false)

		sr, err := w.RunStep(context.Background(), 0, map[string]any{"query": "mouse"})
		if err != nil {
			t.Fatalf("RunStep() error = %v", err)
		}
		if sr.State != types.StepStateSucceeded {
			t.Errorf("State = %q", sr.State)
		}
		if got := driver.Session.Navigations[0]; got != "https://shop.example.com/search?q=mouse" {
			t.Errorf("navigated to %q", got)
		}
		if driver.Session.CloseCalls != 1 {
			t.Errorf("CloseCalls = %d, want per-invocation session release", driver.Session.CloseCalls)
		}
	})

	t.Run("context survives across invocations", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		input, _ := populateSample(driver.Session)
		w := newWorkflow(t, testutil.SampleDefinition(), driver, nil, false)

		if _, err := w.RunStep(context.Background(), 0, map[string]any{"query": "mouse"}); err != nil {
			t.Fatalf("first RunStep() error = %v", err)
		}
		// Second call omits inputs; the stored context must resolve {query}
		if _, err := w.RunStep(context.Background(), 1, nil); err != nil {
			t.Fatalf("second RunStep() error = %v", err)
		}
		if len(input.Filled) != 1 || input.Filled[0] != "mouse" {
			t.Errorf("Filled = %v", input.Filled)
		}
	})

	t.Run("first call validates inputs", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		w := newWorkflow(t, testutil.SampleDefinition(), driver, nil, false)

		_, err := w.RunStep(context.Background(), 0, nil)
		if !werrors.HasCode(err, werrors.CodeInputMissing) {
			t.Errorf("expected %s, got %v", werrors.CodeInputMissing, err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		driver := testutil.NewFakeDriver()
		w := newWorkflow(t, testutil.SampleDefinition(), driver, nil, false)

		_, err := w.RunStep(context.Background(), 9, map[string]any{"query": "x"})
		if !werrors.HasCode(err, werrors.CodeSchemaInvalidValue) {
			t.Errorf("expected %s, got %v", werrors.CodeSchemaInvalidValue, err)
		}
	})
}

func TestExtractActionOutput(t *testing.T) {
	tests := []struct {
		name string
		res  *types.ActionResult
		want any
		ok   bool
	}{
		{
			name: "json content parsed",
			res:  &types.ActionResult{ExtractedContent: `{"total": 3}`, Success: true},
			want: map[string]any{"total": float64(3)},
			ok:   true,
		},
		{
			name: "plain text kept raw",
			res:  &types.ActionResult{ExtractedContent: "Navigated to https://x", Success: true},
			want: "Navigated to https://x",
			ok:   true,
		},
		{
			name: "no content falls back to status record",
			res:  &types.ActionResult{Success: true, IsDone: false},
			want: map[string]any{"success": true, "is_done": false},
			ok:   true,
		},
		{
			name: "nil result",
			res:  nil,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractActionOutput(tt.res)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			switch want := tt.want.(type) {
			case map[string]any:
				gotMap, isMap := got.(map[string]any)
				if !isMap {
					t.Fatalf("got %#v, want map", got)
				}
				for k, v := range want {
					if gotMap[k] != v {
						t.Errorf("%s = %v, want %v", k, gotMap[k], v)
					}
				}
			default:
				if got != tt.want {
					t.Errorf("got %#v, want %#v", got, tt.want)
				}
			}
		})
	}
}

func TestExtractAgentOutput(t *testing.T) {
	t.Run("last content wins", func(t *testing.T) {
		h := &types.AgentHistory{
			Done: true,
			Items: []types.AgentHistoryItem{
				{Results: []types.ActionResult{{ExtractedContent: "early"}}},
				{Results: []types.ActionResult{
					{ExtractedContent: "$19.99"},
					{Success: true, IsDone: true},
				}},
			},
		}
		got, ok := ExtractAgentOutput(h)
		if !ok || got != "$19.99" {
			t.Errorf("got %#v, ok=%v", got, ok)
		}
	})

	t.Run("no content writes nothing", func(t *testing.T) {
		h := &types.AgentHistory{
			Items: []types.AgentHistoryItem{
				{Results: []types.ActionResult{{Success: false}}},
			},
		}
		if _, ok := ExtractAgentOutput(h); ok {
			t.Error("expected no output")
		}
	})
}
