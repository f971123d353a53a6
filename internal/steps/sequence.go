package steps

import (
	"context"
	"fmt"
)

// SequenceResult is the structured output of running an instance's ordered
// step sequence.
type SequenceResult struct {
	Passed      bool      `json:"passed"`
	FailedStep  string    `json:"failed_step,omitempty"`
	StepResults []*Result `json:"step_results"`
}

// SequenceOpts configures a step sequence run.
type SequenceOpts struct {
	Steps []StepConfig // executed in order
	Vars  map[string]string
}

// RunSequence executes the steps strictly in order, stopping at the first
// failure: a failed provision prevents install, a failed install prevents the
// test run. There are no retries.
func (r *Runner) RunSequence(ctx context.Context, dir string, opts SequenceOpts) (*SequenceResult, error) {
	seq := &SequenceResult{Passed: true}

	for _, step := range opts.Steps {
		if err := ctx.Err(); err != nil {
			return seq, fmt.Errorf("sequence canceled before step %q: %w", step.Name, err)
		}

		step.Command = ExpandCommand(step.Command, opts.Vars)

		result, err := r.Run(ctx, dir, step)
		if err != nil {
			return seq, fmt.Errorf("run step %q: %w", step.Name, err)
		}
		seq.StepResults = append(seq.StepResults, result)

		if !result.Passed {
			seq.Passed = false
			seq.FailedStep = step.Name
			break
		}
	}

	return seq, nil
}
