package service

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/types"
)

type listResponse struct {
	Workflows []string `json:"workflows"`
}

type updateRequest struct {
	Filename string         `json:"filename"`
	NodeID   *int           `json:"nodeId"`
	StepData map[string]any `json:"stepData"`
}

type metadataUpdateRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

type updateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type executeRequest struct {
	Name   string         `json:"name"`
	Inputs map[string]any `json:"inputs"`
}

type executeResponse struct {
	Success     bool   `json:"success"`
	TaskID      string `json:"task_id"`
	Workflow    string `json:"workflow"`
	LogPosition int    `json:"log_position"`
	Message     string `json:"message"`
}

type statusResponse struct {
	TaskID   string             `json:"task_id"`
	Status   TaskStatus         `json:"status"`
	Workflow string             `json:"workflow"`
	Result   []types.StepResult `json:"result,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type logsResponse struct {
	Logs        []string           `json:"logs"`
	Position    int                `json:"position"`
	LogPosition int                `json:"log_position"`
	Status      TaskStatus         `json:"status"`
	Result      []types.StepResult `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handler builds the HTTP router.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/workflows", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/update", s.handleUpdate)
		r.Post("/update-metadata", s.handleUpdateMetadata)
		r.Post("/execute", s.handleExecute)
		r.Get("/logs/{taskID}", s.handleLogs)
		r.Get("/tasks/{taskID}/status", s.handleStatus)
		r.Post("/tasks/{taskID}/cancel", s.handleCancel)
		r.Get("/{name}", s.handleGet)
	})

	return r
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := s.ListWorkflows()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Workflows: names})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := s.ReadWorkflow(name)
	if err != nil {
		if werrors.HasCode(err, werrors.CodeIONotFound) {
			writeError(w, http.StatusNotFound, "Workflow "+name+" not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" || req.NodeID == nil || len(req.StepData) == 0 {
		writeJSON(w, http.StatusOK, updateResponse{Success: false, Error: "Missing required fields"})
		return
	}

	doc, err := s.readDocument(req.Filename)
	if err != nil {
		writeJSON(w, http.StatusOK, updateResponse{Success: false, Error: "Workflow file '" + req.Filename + "' not found"})
		return
	}

	steps, _ := doc["steps"].([]any)
	if *req.NodeID < 0 || *req.NodeID >= len(steps) {
		writeJSON(w, http.StatusOK, updateResponse{Success: false, Error: "Node not found in workflow"})
		return
	}
	steps[*req.NodeID] = req.StepData
	doc["steps"] = steps

	if err := s.writeDocument(req.Filename, doc); err != nil {
		writeJSON(w, http.StatusOK, updateResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Success: true})
}

func (s *Service) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || len(req.Metadata) == 0 {
		writeJSON(w, http.StatusOK, updateResponse{Success: false, Error: "Missing required fields"})
		return
	}

	doc, err := s.readDocument(req.Name)
	if err != nil {
		writeJSON(w, http.StatusOK, updateResponse{Success: false, Error: "Workflow not found"})
		return
	}

	for _, field := range []string{"name", "description", "version"} {
		if v, ok := req.Metadata[field]; ok {
			doc[field] = v
		}
	}
	if v, ok := req.Metadata["input_schema"]; ok {
		doc["input_schema"] = v
	}

	if err := s.writeDocument(req.Name, doc); err != nil {
		writeJSON(w, http.StatusOK, updateResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Success: true})
}

func (s *Service) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Missing workflow name")
		return
	}

	task, logPos, err := s.Execute(req.Name, req.Inputs)
	if err != nil {
		if werrors.HasCode(err, werrors.CodeIONotFound) {
			writeError(w, http.StatusNotFound, "Workflow "+req.Name+" not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error starting workflow: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{
		Success:     true,
		TaskID:      task.ID,
		Workflow:    req.Name,
		LogPosition: logPos,
		Message:     "Workflow '" + req.Name + "' execution started with task ID: " + task.ID,
	})
}

func (s *Service) handleLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	position, _ := strconv.Atoi(r.URL.Query().Get("position"))

	logs, newPos := s.ReadLogs(position)
	resp := logsResponse{
		Logs:        logs,
		Position:    newPos,
		LogPosition: newPos,
		Status:      "unknown",
	}
	if task, ok := s.GetTask(taskID); ok {
		resp.Status = task.Status
		resp.Result = task.Result
		resp.Error = task.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, ok := s.GetTask(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "Task "+taskID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		TaskID:   task.ID,
		Status:   task.Status,
		Workflow: task.Workflow,
		Result:   task.Result,
		Error:    task.Error,
	})
}

func (s *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	ok, message := s.Cancel(taskID)
	if !ok && message == "Task not found" {
		writeError(w, http.StatusNotFound, "Task "+taskID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Success: ok, Message: message})
}

func (s *Service) readDocument(name string) (map[string]any, error) {
	data, err := s.ReadWorkflow(name)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, werrors.SchemaParseError(err)
	}
	return doc, nil
}

func (s *Service) writeDocument(name string, doc map[string]any) error {
	path, err := s.workflowPath(name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return werrors.IOWriteError(path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return werrors.IOWriteError(path, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
