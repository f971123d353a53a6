package instance

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/coverage"
	"github.com/conveyorci/conveyor/internal/db"
	"github.com/conveyorci/conveyor/internal/matrix"
	"github.com/conveyorci/conveyor/internal/steps"
	"github.com/conveyorci/conveyor/internal/store"
	"github.com/conveyorci/conveyor/internal/trigger"
	"github.com/conveyorci/conveyor/internal/workspace"
)

// Engine executes the instance lifecycle: checkout → provision → install →
// test → coverage convert → coverage upload.
type Engine struct {
	runner     *steps.Runner
	converter  *coverage.Converter
	uploader   *coverage.Uploader
	workspaces *workspace.Manager
	store      *store.Store
	db         *db.DB
	cfg        *config.WorkflowConfig
	progress   io.Writer // live progress output; nil = silent
}

// NewEngine creates an instance engine.
func NewEngine(
	runner *steps.Runner,
	converter *coverage.Converter,
	uploader *coverage.Uploader,
	workspaces *workspace.Manager,
	st *store.Store,
	database *db.DB,
	cfg *config.WorkflowConfig,
) *Engine {
	return &Engine{
		runner:     runner,
		converter:  converter,
		uploader:   uploader,
		workspaces: workspaces,
		store:      st,
		db:         database,
		cfg:        cfg,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (e *Engine) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// RunOpts configures an instance run.
type RunOpts struct {
	RunID    string
	Instance matrix.Instance
	Event    trigger.Event
}

// RunResult captures the outcome of an instance run.
type RunResult struct {
	Instance         string          `json:"instance"`
	Outcome          string          `json:"outcome"` // "success", "fail"
	FailedStep       string          `json:"failed_step,omitempty"`
	StepResults      []*steps.Result `json:"step_results"`
	CoverageUploaded bool            `json:"coverage_uploaded"`
	TotalDuration    time.Duration   `json:"total_duration"`
}

// Run executes the full instance lifecycle. A step failure yields a fail
// outcome, not an error; errors are reserved for infrastructure problems
// (checkout failures, exec failures, cancellation).
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*RunResult, error) {
	start := time.Now()
	name := opts.Instance.Name()
	e.logf("run %s: starting instance %s", opts.RunID, name)

	result := &RunResult{Instance: name}

	// Isolated checkout of the event's ref.
	dir, err := e.workspaces.Checkout(workspace.CheckoutOpts{
		RunID:    opts.RunID,
		Instance: name,
		Ref:      opts.Event.Ref,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout workspace: %w", err)
	}
	defer func() {
		if rmErr := e.workspaces.Remove(opts.RunID, name); rmErr != nil {
			e.logf("warning: remove workspace: %v", rmErr)
		}
	}()
	e.logf("checked out %s at %s", opts.Event.Ref, dir)

	// Assemble the fixed step sequence from config.
	stepCfgs, err := e.buildSteps()
	if err != nil {
		return nil, err
	}

	vars := opts.Instance.Vars()
	vars["ref"] = opts.Event.Ref

	seq, err := e.runner.RunSequence(ctx, dir, steps.SequenceOpts{
		Steps: stepCfgs,
		Vars:  vars,
	})
	e.recordStepResults(opts, seq)
	if err != nil {
		return nil, fmt.Errorf("run steps: %w", err)
	}

	result.StepResults = seq.StepResults

	if !seq.Passed {
		e.logf("instance %s failed at step %q", name, seq.FailedStep)
		result.Outcome = "fail"
		result.FailedStep = seq.FailedStep
		result.TotalDuration = time.Since(start)
		return result, nil
	}

	// Tests passed; convert and upload coverage.
	if e.cfg.Workflow.Coverage.ConvertCommand != "" {
		if err := e.handleCoverage(ctx, dir, opts, result); err != nil {
			if e.cfg.Workflow.Coverage.Required {
				result.Outcome = "fail"
				result.FailedStep = "coverage"
				result.TotalDuration = time.Since(start)
				_ = e.db.LogRunEvent(opts.RunID, "coverage_failed", fmt.Sprintf("instance=%s err=%v", name, err))
				return result, nil
			}
			// Best-effort: a reporting outage never fails a green matrix.
			e.logf("warning: coverage upload failed (best-effort): %v", err)
			_ = e.db.LogRunEvent(opts.RunID, "coverage_upload_failed", fmt.Sprintf("instance=%s err=%v", name, err))
		}
	}

	e.logf("instance %s passed (%s)", name, time.Since(start).Round(time.Second))
	result.Outcome = "success"
	result.TotalDuration = time.Since(start)
	return result, nil
}

// buildSteps assembles the ordered step configs from the workflow config.
func (e *Engine) buildSteps() ([]steps.StepConfig, error) {
	var cfgs []steps.StepConfig
	for _, stepName := range config.InstanceSteps {
		s, ok := e.cfg.Workflow.Steps[stepName]
		if !ok {
			return nil, fmt.Errorf("step %q not defined in config", stepName)
		}
		timeout := 30 * time.Minute
		if s.Timeout != "" {
			if d, err := time.ParseDuration(s.Timeout); err == nil {
				timeout = d
			}
		}
		cfgs = append(cfgs, steps.StepConfig{
			Name:    stepName,
			Command: s.Command,
			Parser:  s.Parser,
			Timeout: timeout,
		})
	}
	return cfgs, nil
}

// recordStepResults logs every completed step to the DB and saves raw output.
func (e *Engine) recordStepResults(opts RunOpts, seq *steps.SequenceResult) {
	if seq == nil {
		return
	}
	name := opts.Instance.Name()
	for _, r := range seq.StepResults {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		e.logf("step %s: %s (%dms)", r.StepName, status, r.DurationMs)

		if err := e.db.LogInstanceResult(
			opts.RunID, name, opts.Instance.OS, opts.Instance.Python,
			r.StepName, r.Passed, r.ExitCode, r.DurationMs, r.Summary, r.Findings,
		); err != nil {
			e.logf("warning: log step result %q: %v", r.StepName, err)
		}
		if err := e.store.SaveStepOutput(opts.RunID, name, r.StepName, r.Stdout, r.Stderr); err != nil {
			e.logf("warning: save step output %q: %v", r.StepName, err)
		}
	}
}

// handleCoverage converts the coverage artifact and uploads it.
func (e *Engine) handleCoverage(ctx context.Context, dir string, opts RunOpts, result *RunResult) error {
	e.logf("converting coverage artifact")
	artifact, err := e.converter.Convert(ctx, dir, e.cfg.Workflow.Coverage)
	if err != nil {
		return fmt.Errorf("convert coverage: %w", err)
	}

	e.logf("uploading coverage for %s", opts.Instance.Name())
	err = e.uploader.Upload(ctx, artifact, coverage.Tags{
		Workflow: e.cfg.Workflow.Name,
		OS:       opts.Instance.OS,
		Python:   opts.Instance.Python,
		Ref:      opts.Event.Ref,
	})
	if err != nil {
		return fmt.Errorf("upload coverage: %w", err)
	}
	result.CoverageUploaded = true
	return nil
}
