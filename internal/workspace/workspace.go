package workspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Manager checks out isolated source trees for run instances.
type Manager struct {
	git     GitRunner
	baseDir string // where checkouts are created
	repoURL string
}

// NewManager creates a workspace manager for the given repository URL.
func NewManager(git GitRunner, repoURL string, baseDir string) *Manager {
	return &Manager{git: git, repoURL: repoURL, baseDir: baseDir}
}

// DefaultBaseDir returns ~/.conveyor/workspaces, creating it if needed.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".conveyor", "workspaces")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// CheckoutOpts holds options for creating a checkout.
type CheckoutOpts struct {
	RunID    string
	Instance string // e.g. "ubuntu/py3.10"
	Ref      string // branch or tag name
}

// Checkout clones the repository at the given ref into an isolated directory
// for one run instance. Instances never share a checkout.
func (m *Manager) Checkout(opts CheckoutOpts) (string, error) {
	if opts.RunID == "" || opts.Ref == "" {
		return "", fmt.Errorf("run id and ref are required")
	}

	path := filepath.Join(m.baseDir, opts.RunID, sanitize(opts.Instance))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("checkout %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir checkout parent: %w", err)
	}

	// Shallow clone of just the requested ref; instances don't need history.
	_, err := m.git.Run("", "clone", "--depth", "1", "--branch", opts.Ref, m.repoURL, path)
	if err != nil {
		return "", fmt.Errorf("clone %s at %s: %w", m.repoURL, opts.Ref, err)
	}
	return path, nil
}

// Remove deletes an instance checkout.
func (m *Manager) Remove(runID string, instance string) error {
	path := filepath.Join(m.baseDir, runID, sanitize(instance))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(path)
}

// RemoveRun deletes every checkout belonging to a run.
func (m *Manager) RemoveRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	return os.RemoveAll(filepath.Join(m.baseDir, runID))
}

// sanitize makes an instance name filesystem safe.
func sanitize(name string) string {
	return strings.ReplaceAll(name, "/", "-")
}
