package instance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/coverage"
	"github.com/conveyorci/conveyor/internal/db"
	"github.com/conveyorci/conveyor/internal/matrix"
	"github.com/conveyorci/conveyor/internal/steps"
	"github.com/conveyorci/conveyor/internal/store"
	"github.com/conveyorci/conveyor/internal/trigger"
	"github.com/conveyorci/conveyor/internal/workspace"
)

// fakeGit simulates clone by creating the target directory.
type fakeGit struct{}

func (g *fakeGit) Run(dir string, args ...string) (string, error) {
	if len(args) > 0 && args[0] == "clone" {
		if err := os.MkdirAll(args[len(args)-1], 0o755); err != nil {
			return "", err
		}
	}
	return "", nil
}

// fakeCmd routes commands to canned results by prefix and records the order.
type fakeCmd struct {
	exitCodes map[string]int // command prefix → exit code
	commands  []string
}

func (f *fakeCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	f.commands = append(f.commands, command)
	if strings.HasPrefix(command, "coverage xml") {
		// Simulate artifact creation on success.
		if f.exitCodes["coverage xml"] == 0 {
			os.WriteFile(filepath.Join(dir, "coverage.xml"), []byte("<coverage/>"), 0o644)
		}
	}
	for prefix, code := range f.exitCodes {
		if strings.HasPrefix(command, prefix) {
			return "", "", code, nil
		}
	}
	return "", "", 0, nil
}

func testConfig(uploadURL string, required bool) *config.WorkflowConfig {
	return &config.WorkflowConfig{Workflow: config.Workflow{
		Name: "mosdef-gomc-ci",
		Repo: "https://example.com/repo.git",
		Steps: map[string]config.Step{
			"provision": {Command: "conda env create -f {environment_file} python={python}", Parser: "conda", Timeout: "1m"},
			"install":   {Command: "pip install .", Parser: "pip", Timeout: "1m"},
			"test":      {Command: "pytest -v --color=yes", Parser: "pytest", Timeout: "1m"},
		},
		Coverage: config.Coverage{
			ConvertCommand: "coverage xml",
			Artifact:       "coverage.xml",
			UploadURL:      uploadURL,
			Required:       required,
		},
	}}
}

func newTestEngine(t *testing.T, cmd *fakeCmd, cfg *config.WorkflowConfig) (*Engine, *store.Store, *db.DB) {
	t.Helper()

	st := store.NewStore(t.TempDir())
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	wm := workspace.NewManager(&fakeGit{}, cfg.Workflow.Repo, t.TempDir())
	runner := steps.NewRunner(cmd)
	conv := coverage.NewConverter(cmd)
	up := coverage.NewUploader(cfg.Workflow.Coverage.UploadURL, "")

	return NewEngine(runner, conv, up, wm, st, database, cfg), st, database
}

func testOpts() RunOpts {
	return RunOpts{
		RunID:    "run-1",
		Instance: matrix.Instance{OS: "ubuntu", Python: "3.10", EnvironmentFile: "environment.yml"},
		Event:    trigger.Event{Kind: trigger.Push, Ref: "main", RefKind: trigger.Branch},
	}
}

func TestEngine_Run_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cmd := &fakeCmd{exitCodes: map[string]int{}}
	engine, st, database := newTestEngine(t, cmd, testConfig(srv.URL, false))

	st.Create("run-1", "mosdef-gomc-ci", testOpts().Event, nil)

	result, err := engine.Run(context.Background(), testOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != "success" {
		t.Errorf("expected success, got %q (%+v)", result.Outcome, result)
	}
	if !result.CoverageUploaded {
		t.Error("expected coverage uploaded")
	}
	if len(result.StepResults) != 3 {
		t.Errorf("expected 3 step results, got %d", len(result.StepResults))
	}

	// Command substitution applied to provision.
	if !strings.Contains(cmd.commands[0], "environment.yml") || !strings.Contains(cmd.commands[0], "python=3.10") {
		t.Errorf("unexpected provision command: %q", cmd.commands[0])
	}

	// Every step logged to the DB.
	rows, err := database.GetInstanceResults("run-1")
	if err != nil {
		t.Fatalf("get results: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected 3 logged results, got %d", len(rows))
	}
}

func TestEngine_Run_ProvisionFailureStopsInstance(t *testing.T) {
	cmd := &fakeCmd{exitCodes: map[string]int{"conda": 1}}
	engine, st, _ := newTestEngine(t, cmd, testConfig("", false))
	st.Create("run-1", "mosdef-gomc-ci", testOpts().Event, nil)

	result, err := engine.Run(context.Background(), testOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != "fail" {
		t.Errorf("expected fail, got %q", result.Outcome)
	}
	if result.FailedStep != "provision" {
		t.Errorf("expected failed_step=provision, got %q", result.FailedStep)
	}
	// Only provision ran: install/test/coverage never invoked.
	if len(cmd.commands) != 1 {
		t.Errorf("expected 1 command, got %v", cmd.commands)
	}
}

func TestEngine_Run_TestFailure(t *testing.T) {
	cmd := &fakeCmd{exitCodes: map[string]int{"pytest": 1}}
	engine, st, _ := newTestEngine(t, cmd, testConfig("", false))
	st.Create("run-1", "mosdef-gomc-ci", testOpts().Event, nil)

	result, err := engine.Run(context.Background(), testOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != "fail" || result.FailedStep != "test" {
		t.Errorf("unexpected result: %+v", result)
	}
	// Coverage never runs after a failed test step.
	for _, c := range cmd.commands {
		if strings.HasPrefix(c, "coverage") {
			t.Errorf("coverage ran after test failure: %v", cmd.commands)
		}
	}
}

func TestEngine_Run_CoverageUploadBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cmd := &fakeCmd{exitCodes: map[string]int{}}
	engine, st, database := newTestEngine(t, cmd, testConfig(srv.URL, false))
	st.Create("run-1", "mosdef-gomc-ci", testOpts().Event, nil)

	result, err := engine.Run(context.Background(), testOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Upload failed but the instance still passes.
	if result.Outcome != "success" {
		t.Errorf("expected success despite upload failure, got %q", result.Outcome)
	}
	if result.CoverageUploaded {
		t.Error("expected coverage_uploaded=false")
	}

	events, _ := database.GetRunEvents("run-1")
	found := false
	for _, e := range events {
		if e.Event == "coverage_upload_failed" {
			found = true
		}
	}
	if !found {
		t.Error("expected coverage_upload_failed event logged")
	}
}

func TestEngine_Run_CoverageRequiredFailsInstance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cmd := &fakeCmd{exitCodes: map[string]int{}}
	engine, st, _ := newTestEngine(t, cmd, testConfig(srv.URL, true))
	st.Create("run-1", "mosdef-gomc-ci", testOpts().Event, nil)

	result, err := engine.Run(context.Background(), testOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != "fail" || result.FailedStep != "coverage" {
		t.Errorf("expected coverage-required failure, got %+v", result)
	}
}

func TestEngine_Run_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := &fakeCmd{exitCodes: map[string]int{}}
	engine, st, _ := newTestEngine(t, cmd, testConfig("", false))
	st.Create("run-1", "mosdef-gomc-ci", testOpts().Event, nil)

	_, err := engine.Run(ctx, testOpts())
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
}
