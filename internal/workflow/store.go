package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	werrors "github.com/yuefengz/workflow-use/internal/errors"
	"github.com/yuefengz/workflow-use/internal/types"
)

// RunStore persists run records as YAML files, one per run, with atomic
// write-then-rename.
type RunStore struct {
	dir string
}

// NewRunStore creates a store rooted at dir, recovering any writes a
// previous process left interrupted.
func NewRunStore(dir string) (*RunStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating runs dir: %w", err)
	}
	if err := recoverInterruptedWrites(dir); err != nil {
		return nil, fmt.Errorf("recovering interrupted writes: %w", err)
	}
	return &RunStore{dir: dir}, nil
}

// Save persists a run record atomically.
func (s *RunStore) Save(record *types.RunRecord) error {
	data, err := yaml.Marshal(record)
	if err != nil {
		return werrors.IOWriteError(s.path(record.ID), err)
	}

	mainPath := s.path(record.ID)
	tmpPath := mainPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return werrors.IOWriteError(tmpPath, err)
	}
	if err := os.Rename(tmpPath, mainPath); err != nil {
		os.Remove(tmpPath)
		return werrors.IOWriteError(mainPath, err)
	}
	return nil
}

// Get retrieves a run record by ID.
func (s *RunStore) Get(id string) (*types.RunRecord, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, werrors.IONotFound(s.path(id))
		}
		return nil, werrors.IOReadError(s.path(id), err)
	}

	var record types.RunRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, werrors.IOReadError(s.path(id), err)
	}
	return &record, nil
}

// List returns all run records, most recent first. Unreadable files are
// skipped.
func (s *RunStore) List() ([]*types.RunRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, werrors.IOReadError(s.dir, err)
	}

	var records []*types.RunRecord
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		record, err := s.Get(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

func (s *RunStore) path(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}

// recoverInterruptedWrites handles .tmp files left from crashed writes.
func recoverInterruptedWrites(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".yaml.tmp") {
			continue
		}

		tmpPath := filepath.Join(dir, entry.Name())
		mainPath := strings.TrimSuffix(tmpPath, ".tmp")

		if _, err := os.Stat(mainPath); err == nil {
			os.Remove(tmpPath)
		} else {
			os.Rename(tmpPath, mainPath)
		}
	}
	return nil
}
