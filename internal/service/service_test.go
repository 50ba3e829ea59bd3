package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/yuefengz/workflow-use/internal/agent"
	"github.com/yuefengz/workflow-use/internal/schema"
	"github.com/yuefengz/workflow-use/internal/testutil"
)

const workflowFile = "search-products.workflow.json"

func newTestService(t *testing.T, driver *testutil.FakeDriver) (*Service, string) {
	t.Helper()

	dir := t.TempDir()
	data, err := schema.Marshal(testutil.SampleDefinition())
	if err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, dir, workflowFile, data)

	svc := New(Options{
		WorkflowDir:     dir,
		Driver:          driver,
		Delegate:        agent.NewDelegate(testutil.DoneAgent("$19.99"), 0, testutil.NewSilentLogger()),
		FallbackEnabled: true,
		Logger:          testutil.NewSilentLogger(),
	})
	return svc, dir
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, handler http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding %s response: %v", path, err)
		}
	}
	return rec
}

func TestListAndGet(t *testing.T) {
	svc, _ := newTestService(t, testutil.NewFakeDriver())
	handler := svc.Handler()

	var list listResponse
	rec := getJSON(t, handler, "/api/workflows/", &list)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if len(list.Workflows) != 1 || list.Workflows[0] != workflowFile {
		t.Errorf("Workflows = %v", list.Workflows)
	}

	rec = getJSON(t, handler, "/api/workflows/"+workflowFile, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if _, err := schema.Load(rec.Body.Bytes()); err != nil {
		t.Errorf("served document no longer loads: %v", err)
	}

	rec = getJSON(t, handler, "/api/workflows/missing.workflow.json", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing workflow status = %d", rec.Code)
	}
}

func TestExecuteLifecycle(t *testing.T) {
	driver := testutil.NewFakeDriver()
	driver.Session.CSS["#search"] = &testutil.FakeElement{Tag: "input"}
	driver.Session.CSS["button.submit"] = &testutil.FakeElement{}

	svc, _ := newTestService(t, driver)
	handler := svc.Handler()

	rec := postJSON(t, handler, "/api/workflows/execute", executeRequest{
		Name:   workflowFile,
		Inputs: map[string]any{"query": "mouse"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute status = %d: %s", rec.Code, rec.Body.String())
	}
	var exec executeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &exec); err != nil {
		t.Fatal(err)
	}
	if !exec.Success || exec.TaskID == "" {
		t.Fatalf("execute response = %+v", exec)
	}

	svc.Wait()

	var status statusResponse
	rec = getJSON(t, handler, "/api/workflows/tasks/"+exec.TaskID+"/status", &status)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if status.Status != TaskStatusCompleted {
		t.Errorf("task status = %q, error = %q", status.Status, status.Error)
	}
	if len(status.Result) != 4 {
		t.Errorf("result steps = %d", len(status.Result))
	}

	var logs logsResponse
	getJSON(t, handler, "/api/workflows/logs/"+exec.TaskID+"?position=0", &logs)
	if len(logs.Logs) == 0 {
		t.Error("expected log lines")
	}
	if logs.Position == 0 {
		t.Error("expected log position to advance")
	}

	// Incremental read from the returned position yields nothing new
	var tail logsResponse
	getJSON(t, handler, "/api/workflows/logs/"+exec.TaskID+"?position="+strconv.Itoa(logs.Position), &tail)
	if len(tail.Logs) != 0 {
		t.Errorf("unexpected new lines: %v", tail.Logs)
	}
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	svc, _ := newTestService(t, testutil.NewFakeDriver())
	rec := postJSON(t, svc.Handler(), "/api/workflows/execute", executeRequest{Name: "nope.workflow.json"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}

	rec = postJSON(t, svc.Handler(), "/api/workflows/execute", executeRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name status = %d", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	driver := testutil.NewFakeDriver()
	driver.Session.CSS["#search"] = &testutil.FakeElement{Tag: "input"}
	driver.Session.CSS["button.submit"] = &testutil.FakeElement{}

	svc, _ := newTestService(t, driver)
	handler := svc.Handler()

	rec := postJSON(t, handler, "/api/workflows/tasks/does-not-exist/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown task cancel status = %d", rec.Code)
	}

	exec := executeWorkflow(t, handler, workflowFile)
	svc.Wait()

	var cancel cancelResponse
	rec = postJSON(t, handler, "/api/workflows/tasks/"+exec.TaskID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cancel); err != nil {
		t.Fatal(err)
	}
	if cancel.Success {
		t.Error("cancelling a finished task should not succeed")
	}
}

func TestUpdateWorkflow(t *testing.T) {
	svc, dir := newTestService(t, testutil.NewFakeDriver())
	handler := svc.Handler()

	node := 1
	rec := postJSON(t, handler, "/api/workflows/update", updateRequest{
		Filename: workflowFile,
		NodeID:   &node,
		StepData: map[string]any{
			"type":        "input",
			"cssSelector": "#q",
			"value":       "{query}",
			"description": "Type the query into the new search box",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	var resp updateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("update failed: %s", resp.Error)
	}

	def, err := schema.LoadFile(filepath.Join(dir, workflowFile))
	if err != nil {
		t.Fatalf("updated document no longer loads: %v", err)
	}
	if def.Steps[1].Input.CSSSelector != "#q" {
		t.Errorf("step not replaced: %+v", def.Steps[1])
	}

	t.Run("node out of range", func(t *testing.T) {
		bad := 99
		rec := postJSON(t, handler, "/api/workflows/update", updateRequest{
			Filename: workflowFile,
			NodeID:   &bad,
			StepData: map[string]any{"type": "scroll", "scrollX": 0, "scrollY": 1},
		})
		var resp updateResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Success || resp.Error != "Node not found in workflow" {
			t.Errorf("resp = %+v", resp)
		}
	})
}

func TestUpdateMetadata(t *testing.T) {
	svc, dir := newTestService(t, testutil.NewFakeDriver())
	handler := svc.Handler()

	rec := postJSON(t, handler, "/api/workflows/update-metadata", metadataUpdateRequest{
		Name: workflowFile,
		Metadata: map[string]any{
			"description": "Renamed description",
			"version":     "2.0",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp updateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("update failed: %s", resp.Error)
	}

	def, err := schema.LoadFile(filepath.Join(dir, workflowFile))
	if err != nil {
		t.Fatal(err)
	}
	if def.Description != "Renamed description" || def.Version != "2.0" {
		t.Errorf("metadata not applied: %q %q", def.Description, def.Version)
	}
	if def.Name != "search-products" {
		t.Errorf("untouched field changed: %q", def.Name)
	}
}

func TestWorkflowPathRejectsTraversal(t *testing.T) {
	svc, dir := newTestService(t, testutil.NewFakeDriver())

	// Plant a file outside the workflow dir
	outside := filepath.Join(filepath.Dir(dir), "secret.workflow.json")
	if err := os.WriteFile(outside, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(outside) })

	if _, err := svc.ReadWorkflow("../secret.workflow.json"); err == nil {
		t.Error("traversal not rejected")
	}
}

func executeWorkflow(t *testing.T, handler http.Handler, name string) executeResponse {
	t.Helper()
	rec := postJSON(t, handler, "/api/workflows/execute", executeRequest{
		Name:   name,
		Inputs: map[string]any{"query": "mouse"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute status = %d: %s", rec.Code, rec.Body.String())
	}
	var exec executeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &exec); err != nil {
		t.Fatal(err)
	}
	return exec
}

