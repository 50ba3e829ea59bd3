// Package service exposes workflows over HTTP: listing and editing the
// workflow directory, asynchronous execution with task tracking, position
// addressed logs, and cooperative cancellation.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yuefengz/workflow-use/internal/agent"
	"github.com/yuefengz/workflow-use/internal/browser"
	"github.com/yuefengz/workflow-use/internal/controller"
	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/schema"
	"github.com/yuefengz/workflow-use/internal/types"
	"github.com/yuefengz/workflow-use/internal/workflow"
)

// TaskStatus tracks a background execution.
type TaskStatus string

const (
	TaskStatusRunning    TaskStatus = "running"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelling TaskStatus = "cancelling"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task is the in-memory record of one asynchronous workflow execution.
type Task struct {
	ID       string
	Workflow string
	Status   TaskStatus
	Result   []types.StepResult
	Error    string

	cancel context.CancelFunc
}

// Options configures a Service.
type Options struct {
	// WorkflowDir holds the *.workflow.json files served and executed.
	WorkflowDir string

	// RunStore persists completed run records. Optional.
	RunStore *workflow.RunStore

	// Execution collaborators, handed to each workflow run.
	Driver          browser.Driver
	Controller      *controller.Controller
	Delegate        *agent.Delegate
	FallbackEnabled bool

	Logger *slog.Logger
}

// Service owns the task table and the log buffer shared by all executions.
type Service struct {
	opts   Options
	logger *slog.Logger
	logs   *logBuffer

	mu    sync.Mutex
	tasks map[string]*Task

	// wg tracks background executions so tests and shutdown can drain them.
	wg sync.WaitGroup
}

// New creates a service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:   opts,
		logger: logger,
		logs:   newLogBuffer(),
		tasks:  make(map[string]*Task),
	}
}

// ListWorkflows returns the file names of all workflows in the directory.
func (s *Service) ListWorkflows() ([]string, error) {
	entries, err := os.ReadDir(s.opts.WorkflowDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, werrors.IOReadError(s.opts.WorkflowDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), schema.WorkflowExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// ReadWorkflow returns the raw document for a workflow file name.
func (s *Service) ReadWorkflow(name string) ([]byte, error) {
	path, err := s.workflowPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, werrors.IONotFound(path)
		}
		return nil, werrors.IOReadError(path, err)
	}
	return data, nil
}

// Execute starts a workflow in the background and returns the task handle
// plus the log position a client should poll from.
func (s *Service) Execute(name string, inputs map[string]any) (*Task, int, error) {
	path, err := s.workflowPath(name)
	if err != nil {
		return nil, 0, err
	}
	def, err := schema.LoadFile(path)
	if err != nil {
		return nil, 0, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{
		ID:       uuid.NewString(),
		Workflow: name,
		Status:   TaskStatusRunning,
		cancel:   cancel,
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	logPos := s.logs.Position()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.runTask(ctx, task, def, inputs)
	}()

	return task, logPos, nil
}

func (s *Service) runTask(ctx context.Context, task *Task, def *types.Definition, inputs map[string]any) {
	runLogger := slog.New(slog.NewTextHandler(s.logs, nil))
	s.logs.Append("Starting workflow: " + task.Workflow)

	wf, err := workflow.New(def, workflow.Options{
		Driver:          s.opts.Driver,
		Controller:      s.opts.Controller,
		Delegate:        s.opts.Delegate,
		FallbackEnabled: s.opts.FallbackEnabled,
		Logger:          runLogger,
	})
	if err != nil {
		s.finishTask(task, nil, err)
		return
	}

	record, err := wf.Run(ctx, inputs)
	if record != nil && s.opts.RunStore != nil {
		if saveErr := s.opts.RunStore.Save(record); saveErr != nil {
			s.logger.Warn("persisting run record", "error", saveErr)
		}
	}
	s.finishTask(task, record, err)
}

func (s *Service) finishTask(task *Task, record *types.RunRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record != nil {
		task.Result = record.Steps
	}
	switch {
	case err == nil:
		task.Status = TaskStatusCompleted
		s.logs.Append("Workflow completed: " + task.Workflow)
	case werrors.IsCancelled(err):
		task.Status = TaskStatusCancelled
		s.logs.Append("Workflow cancelled: " + task.Workflow)
	default:
		task.Status = TaskStatusFailed
		task.Error = err.Error()
		s.logs.Append("Workflow failed: " + task.Workflow + ": " + err.Error())
	}
}

// GetTask returns a task by ID.
func (s *Service) GetTask(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	copied := *task
	return &copied, true
}

// Cancel requests cooperative cancellation of a running task. The task
// transitions to cancelling immediately and to cancelled once the run
// observes the signal.
func (s *Service) Cancel(id string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false, "Task not found"
	}
	if task.Status != TaskStatusRunning {
		return false, "Task is not running (status: " + string(task.Status) + ")"
	}

	task.Status = TaskStatusCancelling
	task.cancel()
	return true, "Cancellation requested"
}

// ReadLogs returns log lines from the given position plus the new position.
func (s *Service) ReadLogs(position int) ([]string, int) {
	return s.logs.ReadFrom(position)
}

// Wait blocks until all background executions finish. Test and shutdown
// helper.
func (s *Service) Wait() {
	s.wg.Wait()
}

// workflowPath maps a workflow file name to its path, rejecting anything
// that would escape the workflow directory.
func (s *Service) workflowPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", werrors.IONotFound(name)
	}
	path := filepath.Join(s.opts.WorkflowDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", werrors.IONotFound(path)
	}
	return path, nil
}
