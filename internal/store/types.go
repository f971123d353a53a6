package store

import "github.com/conveyorci/conveyor/internal/trigger"

// Run statuses.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusPassed   = "passed"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Publish outcomes recorded on a run.
const (
	PublishSkipped   = "skipped"
	PublishSucceeded = "succeeded"
	PublishFailed    = "failed"
)

// RunState is the top-level persisted state for a single pipeline run.
type RunState struct {
	ID             string            `json:"id"`
	Workflow       string            `json:"workflow"`
	Event          trigger.Event     `json:"event"`
	Status         string            `json:"status"`
	Instances      []InstanceRecord  `json:"instances"`
	PublishOutcome string            `json:"publish_outcome,omitempty"`
	PublishReason  string            `json:"publish_reason,omitempty"`
	PublishedTags  []string          `json:"published_tags,omitempty"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

// InstanceRecord records the outcome of one matrix instance within a run.
type InstanceRecord struct {
	Name       string       `json:"name"` // e.g. "ubuntu/py3.10"
	OS         string       `json:"os"`
	Python     string       `json:"python"`
	Status     string       `json:"status"` // pending/running/passed/failed/canceled
	FailedStep string       `json:"failed_step,omitempty"`
	Duration   string       `json:"duration,omitempty"`
	Steps      []StepRecord `json:"steps,omitempty"`
}

// StepRecord is one step outcome within an instance.
type StepRecord struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
}
