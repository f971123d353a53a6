package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/db"
	"github.com/conveyorci/conveyor/internal/instance"
	"github.com/conveyorci/conveyor/internal/matrix"
	"github.com/conveyorci/conveyor/internal/publish"
	"github.com/conveyorci/conveyor/internal/store"
	"github.com/conveyorci/conveyor/internal/trigger"
)

// ErrNotTriggered is returned when an event matches no trigger rule.
var ErrNotTriggered = errors.New("event does not match any trigger")

// InstanceRunner executes one matrix instance end to end.
type InstanceRunner interface {
	Run(ctx context.Context, opts instance.RunOpts) (*instance.RunResult, error)
}

// ImagePublisher runs the publish stage for a ref.
type ImagePublisher interface {
	Publish(ctx context.Context, ref string, kind trigger.RefKind) (*publish.Result, error)
}

// Orchestrator drives a full pipeline run: trigger resolution, matrix fan-out,
// the barrier, and the gated publish stage.
type Orchestrator struct {
	cfg       *config.WorkflowConfig
	instances InstanceRunner
	publisher ImagePublisher
	store     *store.Store
	db        *db.DB
	progress  io.Writer // live progress output; nil = silent
}

// New creates an Orchestrator.
func New(
	cfg *config.WorkflowConfig,
	instances InstanceRunner,
	publisher ImagePublisher,
	st *store.Store,
	database *db.DB,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		instances: instances,
		publisher: publisher,
		store:     st,
		db:        database,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "→ "+format+"\n", args...)
	}
}

// instanceOutcome pairs one instance's result with any infrastructure error.
type instanceOutcome struct {
	instance matrix.Instance
	result   *instance.RunResult
	err      error
}

// Run executes a pipeline run for the given event. Instance failures are
// reported through the returned RunState, not as an error; errors are reserved
// for events that match no trigger and for setup problems.
func (o *Orchestrator) Run(ctx context.Context, ev trigger.Event) (*store.RunState, error) {
	resolver := trigger.NewResolver(o.cfg.Workflow.Triggers)
	matched, err := resolver.Resolve(ev)
	if err != nil {
		return nil, fmt.Errorf("resolve trigger: %w", err)
	}
	if !matched {
		return nil, ErrNotTriggered
	}

	instances := matrix.Expand(o.cfg.Workflow.Matrix)
	if len(instances) == 0 {
		return nil, fmt.Errorf("matrix expands to zero instances")
	}

	runID := store.NewRunID(time.Now())
	records := make([]store.InstanceRecord, len(instances))
	for i, inst := range instances {
		records[i] = store.InstanceRecord{
			Name:   inst.Name(),
			OS:     inst.OS,
			Python: inst.Python,
			Status: store.StatusPending,
		}
	}

	if _, err := o.store.Create(runID, o.cfg.Workflow.Name, ev, records); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	o.logEvent(runID, "created", fmt.Sprintf("event=%s ref=%s ref_kind=%s instances=%d",
		ev.Kind, ev.Ref, ev.RefKind, len(instances)))

	if err := o.store.Update(runID, func(rs *store.RunState) {
		rs.Status = store.StatusRunning
	}); err != nil {
		return nil, fmt.Errorf("mark run running: %w", err)
	}

	o.logf("run %s: %d instances", runID, len(instances))

	// Fan out. Every goroutine returns nil so one instance failing never
	// cancels its siblings; Wait is the barrier before the publish stage.
	outcomes := make([]instanceOutcome, len(instances))
	g, gctx := errgroup.WithContext(ctx)
	for i, inst := range instances {
		i, inst := i, inst
		g.Go(func() error {
			res, runErr := o.instances.Run(gctx, instance.RunOpts{
				RunID:    runID,
				Instance: inst,
				Event:    ev,
			})
			outcomes[i] = instanceOutcome{instance: inst, result: res, err: runErr}
			return nil
		})
	}
	_ = g.Wait()

	canceled := ctx.Err() != nil
	allGreen := o.recordOutcomes(runID, outcomes, canceled)

	// Publish gate.
	o.runPublishStage(ctx, runID, ev, allGreen, canceled)

	// Final run status.
	if err := o.store.Update(runID, func(rs *store.RunState) {
		switch {
		case canceled:
			rs.Status = store.StatusCanceled
		case allGreen && rs.PublishOutcome != store.PublishFailed:
			rs.Status = store.StatusPassed
		default:
			rs.Status = store.StatusFailed
		}
	}); err != nil {
		return nil, fmt.Errorf("finalize run: %w", err)
	}

	rs, err := o.store.Get(runID)
	if err != nil {
		return nil, err
	}
	o.logEvent(runID, "completed", fmt.Sprintf("status=%s publish=%s", rs.Status, rs.PublishOutcome))
	o.logf("run %s: %s", runID, rs.Status)
	return rs, nil
}

// recordOutcomes writes every instance result to the store and reports whether
// the whole matrix passed.
func (o *Orchestrator) recordOutcomes(runID string, outcomes []instanceOutcome, canceled bool) bool {
	allGreen := true
	for _, out := range outcomes {
		name := out.instance.Name()

		status := store.StatusPassed
		failedStep := ""
		duration := ""
		var stepRecords []store.StepRecord

		switch {
		case out.err != nil:
			allGreen = false
			status = store.StatusFailed
			if canceled {
				status = store.StatusCanceled
			}
			o.logEvent(runID, "instance_error", fmt.Sprintf("instance=%s err=%v", name, out.err))
		case out.result == nil:
			allGreen = false
			status = store.StatusFailed
		default:
			if out.result.Outcome != "success" {
				allGreen = false
				status = store.StatusFailed
				failedStep = out.result.FailedStep
			}
			duration = out.result.TotalDuration.Round(time.Millisecond).String()
			for _, sr := range out.result.StepResults {
				stepRecords = append(stepRecords, store.StepRecord{
					Name:       sr.StepName,
					Passed:     sr.Passed,
					ExitCode:   sr.ExitCode,
					DurationMs: sr.DurationMs,
					Summary:    sr.Summary,
				})
			}
		}

		if err := o.store.UpdateInstance(runID, name, func(rec *store.InstanceRecord) {
			rec.Status = status
			rec.FailedStep = failedStep
			rec.Duration = duration
			rec.Steps = stepRecords
		}); err != nil {
			o.logf("warning: update instance %s: %v", name, err)
		}
	}
	return allGreen
}

// runPublishStage applies the gate and, when open, runs the publisher. The
// outcome is recorded on the run state and in the event log either way.
func (o *Orchestrator) runPublishStage(ctx context.Context, runID string, ev trigger.Event, allGreen bool, canceled bool) {
	skip := func(reason string) {
		o.logf("publish skipped: %s", reason)
		if err := o.db.LogPublishEvent(runID, store.PublishSkipped, reason, ""); err != nil {
			o.logf("warning: log publish event: %v", err)
		}
		_ = o.store.Update(runID, func(rs *store.RunState) {
			rs.PublishOutcome = store.PublishSkipped
			rs.PublishReason = reason
		})
	}

	switch {
	case canceled:
		skip("run canceled")
		return
	case ev.Kind == trigger.PullRequest:
		// Pull requests validate only; images never ship from a PR.
		skip("pull_request event")
		return
	case !allGreen:
		skip("instance failures")
		return
	}

	o.logf("publish stage: ref=%s kind=%s", ev.Ref, ev.RefKind)
	result, err := o.publisher.Publish(ctx, ev.Ref, ev.RefKind)
	if err != nil {
		o.logf("publish failed: %v", err)
		if dbErr := o.db.LogPublishEvent(runID, store.PublishFailed, err.Error(), ""); dbErr != nil {
			o.logf("warning: log publish event: %v", dbErr)
		}
		_ = o.store.Update(runID, func(rs *store.RunState) {
			rs.PublishOutcome = store.PublishFailed
			rs.PublishReason = err.Error()
		})
		return
	}

	tags := strings.Join(result.Tags, ",")
	if err := o.db.LogPublishEvent(runID, store.PublishSucceeded, "", tags); err != nil {
		o.logf("warning: log publish event: %v", err)
	}
	_ = o.store.Update(runID, func(rs *store.RunState) {
		rs.PublishOutcome = store.PublishSucceeded
		rs.PublishedTags = result.Tags
	})
}

func (o *Orchestrator) logEvent(runID string, event string, detail string) {
	if err := o.db.LogRunEvent(runID, event, detail); err != nil {
		o.logf("warning: log run event %q: %v", event, err)
	}
}
