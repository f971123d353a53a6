package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
workflow:
  name: mosdef-gomc-ci
  repo: https://github.com/GOMC-WSU/MoSDeF-GOMC.git
  triggers:
    push:
      branches: [main]
    pull_request:
      branches: [main]
    schedule:
      - cron: "0 0 * * *"
    dispatch: true
  matrix:
    os: [ubuntu, macos]
    python: ["3.10", "3.11"]
    include:
      - os: ubuntu
        environment_file: environment.yml
      - os: macos
        environment_file: environment.yml
  defaults:
    timeout: 30m
    environment_file: environment.yml
  steps:
    provision:
      command: "conda env create -f {environment_file} -n ci-{python} python={python}"
      parser: conda
      timeout: 20m
    install:
      command: "pip install ."
      parser: pip
    test:
      command: "pytest -v --color=yes --cov=mosdef_gomc mosdef_gomc/tests/"
      parser: pytest
  coverage:
    convert_command: "coverage xml"
    artifact: coverage.xml
    upload_url: https://coverage.example.com/upload
    token_env: COVERAGE_TOKEN
  publish:
    registry: docker.io
    image: gomcwsu/mosdef-gomc
    username_env: DOCKER_USERNAME
    password_env: DOCKER_PASSWORD
    context: "."
    dockerfile: Dockerfile
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conveyor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Sample(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := cfg.Workflow
	if w.Name != "mosdef-gomc-ci" {
		t.Errorf("expected name mosdef-gomc-ci, got %q", w.Name)
	}
	if w.Triggers.Push == nil || len(w.Triggers.Push.Branches) != 1 || w.Triggers.Push.Branches[0] != "main" {
		t.Errorf("unexpected push trigger: %+v", w.Triggers.Push)
	}
	if len(w.Triggers.Schedule) != 1 || w.Triggers.Schedule[0].Cron != "0 0 * * *" {
		t.Errorf("unexpected schedule: %+v", w.Triggers.Schedule)
	}
	if !w.Triggers.Dispatch {
		t.Error("expected dispatch trigger enabled")
	}
	if len(w.Matrix.OS) != 2 || len(w.Matrix.Python) != 2 {
		t.Errorf("unexpected matrix axes: os=%v python=%v", w.Matrix.OS, w.Matrix.Python)
	}
}

func TestLoad_AppliesDefaultTimeout(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// install and test have no explicit timeout; defaults.timeout applies.
	if got := cfg.Workflow.Steps["install"].Timeout; got != "30m" {
		t.Errorf("expected install timeout 30m, got %q", got)
	}
	if got := cfg.Workflow.Steps["test"].Timeout; got != "30m" {
		t.Errorf("expected test timeout 30m, got %q", got)
	}
	// provision keeps its own.
	if got := cfg.Workflow.Steps["provision"].Timeout; got != "20m" {
		t.Errorf("expected provision timeout 20m, got %q", got)
	}
}

func TestLoad_SynthesizesMissingOverrides(t *testing.T) {
	yaml := `
workflow:
  name: minimal
  repo: https://example.com/repo.git
  triggers:
    dispatch: true
  matrix:
    os: [ubuntu, macos]
    python: ["3.10"]
  defaults:
    environment_file: environment.yml
  steps:
    provision: {command: "true"}
    install: {command: "true"}
    test: {command: "true"}
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Workflow.Matrix.Include) != 2 {
		t.Fatalf("expected 2 synthesized overrides, got %d", len(cfg.Workflow.Matrix.Include))
	}
	for _, osName := range []string{"ubuntu", "macos"} {
		ov := cfg.Workflow.Matrix.OverrideFor(osName)
		if ov.EnvironmentFile != "environment.yml" {
			t.Errorf("os %s: expected environment.yml, got %q", osName, ov.EnvironmentFile)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/conveyor.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_SampleIsValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("expected no validation errors, got %v", errs)
	}
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	cfg := &WorkflowConfig{}
	errs := Validate(cfg)

	wantFields := map[string]bool{
		"workflow.name":           false,
		"workflow.repo":           false,
		"workflow.triggers":       false,
		"workflow.matrix.os":      false,
		"workflow.matrix.python":  false,
		"workflow.steps.provision": false,
		"workflow.steps.install":  false,
		"workflow.steps.test":     false,
	}
	for _, e := range errs {
		if _, ok := wantFields[e.Field]; ok {
			wantFields[e.Field] = true
		}
	}
	for field, seen := range wantFields {
		if !seen {
			t.Errorf("expected validation error for %s", field)
		}
	}
}

func TestValidate_BadCron(t *testing.T) {
	cfg := validBase()
	cfg.Workflow.Triggers.Schedule = []ScheduleRule{{Cron: "not a cron"}}

	errs := Validate(cfg)
	if !hasFieldError(errs, "workflow.triggers.schedule[0].cron") {
		t.Errorf("expected cron validation error, got %v", errs)
	}
}

func TestValidate_DuplicateMatrixValue(t *testing.T) {
	cfg := validBase()
	cfg.Workflow.Matrix.OS = []string{"ubuntu", "ubuntu"}

	errs := Validate(cfg)
	if !hasFieldError(errs, "workflow.matrix.os[1]") {
		t.Errorf("expected duplicate os error, got %v", errs)
	}
}

func TestValidate_BadPythonVersion(t *testing.T) {
	cfg := validBase()
	cfg.Workflow.Matrix.Python = []string{"three.ten"}

	errs := Validate(cfg)
	if !hasFieldError(errs, "workflow.matrix.python[0]") {
		t.Errorf("expected python version error, got %v", errs)
	}
}

func TestValidate_UndeclaredIncludeOS(t *testing.T) {
	cfg := validBase()
	cfg.Workflow.Matrix.Include = []OSOverride{{OS: "windows"}}

	errs := Validate(cfg)
	if !hasFieldError(errs, "workflow.matrix.include[0].os") {
		t.Errorf("expected undeclared os error, got %v", errs)
	}
}

func TestValidate_UnrecognizedParser(t *testing.T) {
	cfg := validBase()
	s := cfg.Workflow.Steps["test"]
	s.Parser = "junit"
	cfg.Workflow.Steps["test"] = s

	errs := Validate(cfg)
	if !hasFieldError(errs, "workflow.steps.test.parser") {
		t.Errorf("expected parser error, got %v", errs)
	}
}

func TestValidate_BadImageReference(t *testing.T) {
	cfg := validBase()
	cfg.Workflow.Publish.Image = "Not A Valid Image!!"

	errs := Validate(cfg)
	if !hasFieldError(errs, "workflow.publish.image") {
		t.Errorf("expected image error, got %v", errs)
	}
}

func validBase() *WorkflowConfig {
	return &WorkflowConfig{Workflow: Workflow{
		Name: "test",
		Repo: "https://example.com/repo.git",
		Triggers: Triggers{
			Dispatch: true,
		},
		Matrix: Matrix{
			OS:     []string{"ubuntu"},
			Python: []string{"3.10"},
		},
		Steps: map[string]Step{
			"provision": {Command: "true"},
			"install":   {Command: "true"},
			"test":      {Command: "true"},
		},
	}}
}

func hasFieldError(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
