package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/conveyorci/conveyor/internal/trigger"
)

// Store manages run state on disk.
type Store struct {
	baseDir string // defaults to ~/.conveyor/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.conveyor/runs, creating the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".conveyor", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.runDir(id), "run.json")
}

// StepOutputDir returns the directory for storing raw step output of an instance.
func (s *Store) StepOutputDir(id string, instanceName string) string {
	return filepath.Join(s.runDir(id), "instances", instanceSlug(instanceName))
}

// instanceSlug makes an instance name filesystem safe ("ubuntu/py3.10" → "ubuntu-py3.10").
func instanceSlug(name string) string {
	out := []rune(name)
	for i, r := range out {
		if r == '/' {
			out[i] = '-'
		}
	}
	return string(out)
}

// NewRunID generates a time-ordered run identifier.
func NewRunID(t time.Time) string {
	return t.UTC().Format("20060102-150405.000000000")
}

// Create initialises a new run on disk.
func (s *Store) Create(id string, workflow string, ev trigger.Event, instances []InstanceRecord) (*RunState, error) {
	dir := s.runDir(id)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("run %s already exists", id)
	}

	if err := os.MkdirAll(filepath.Join(dir, "instances"), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir instances: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rs := &RunState{
		ID:        id,
		Workflow:  workflow,
		Event:     ev,
		Status:    StatusPending,
		Instances: instances,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := WriteJSON(s.runPath(id), rs); err != nil {
		return nil, fmt.Errorf("write run.json: %w", err)
	}
	return rs, nil
}

// Get reads the run state for an id.
func (s *Store) Get(id string) (*RunState, error) {
	var rs RunState
	if err := ReadJSON(s.runPath(id), &rs); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, err
	}
	return &rs, nil
}

// Update performs an atomic read-modify-write of the run state.
func (s *Store) Update(id string, fn func(*RunState)) error {
	rs, err := s.Get(id)
	if err != nil {
		return err
	}
	fn(rs)
	rs.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return WriteJSON(s.runPath(id), rs)
}

// UpdateInstance mutates a single instance record within the run state.
func (s *Store) UpdateInstance(id string, instanceName string, fn func(*InstanceRecord)) error {
	return s.Update(id, func(rs *RunState) {
		for i := range rs.Instances {
			if rs.Instances[i].Name == instanceName {
				fn(&rs.Instances[i])
				return
			}
		}
	})
}

// List returns all runs, optionally filtered by status, newest first.
// Pass "" for statusFilter to return all runs.
func (s *Store) List(statusFilter string) ([]RunState, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []RunState
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rs, err := s.Get(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		if statusFilter == "" || rs.Status == statusFilter {
			runs = append(runs, *rs)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].ID > runs[j].ID
	})
	return runs, nil
}

// Delete removes all data for a run.
func (s *Store) Delete(id string) error {
	dir := s.runDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s not found", id)
	}
	return os.RemoveAll(dir)
}

// SaveStepOutput persists a step's raw stdout/stderr for an instance.
func (s *Store) SaveStepOutput(id string, instanceName string, stepName string, stdout string, stderr string) error {
	dir := s.StepOutputDir(id, instanceName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir step output dir: %w", err)
	}
	if err := WriteAtomic(filepath.Join(dir, stepName+".stdout.log"), []byte(stdout)); err != nil {
		return err
	}
	return WriteAtomic(filepath.Join(dir, stepName+".stderr.log"), []byte(stderr))
}

// GetStepOutput reads a step's saved stdout for an instance.
func (s *Store) GetStepOutput(id string, instanceName string, stepName string) (string, error) {
	path := filepath.Join(s.StepOutputDir(id, instanceName), stepName+".stdout.log")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
