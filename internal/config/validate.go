package config

import (
	"fmt"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	goversion "github.com/hashicorp/go-version"
	"github.com/robfig/cron/v3"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedParsers is the set of valid parser names for steps.
var recognizedParsers = map[string]bool{
	"pytest":  true,
	"conda":   true,
	"pip":     true,
	"generic": true,
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks a WorkflowConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *WorkflowConfig) []ValidationError {
	var errs []ValidationError
	w := cfg.Workflow

	if w.Name == "" {
		errs = append(errs, ValidationError{Field: "workflow.name", Message: "is required"})
	}
	if w.Repo == "" {
		errs = append(errs, ValidationError{Field: "workflow.repo", Message: "is required"})
	}

	validateTriggers(&w, &errs)
	validateMatrix(&w, &errs)
	validateSteps(&w, &errs)

	if w.Publish.Image != "" {
		if _, err := name.NewRepository(w.Publish.Image); err != nil {
			errs = append(errs, ValidationError{
				Field:   "workflow.publish.image",
				Message: fmt.Sprintf("invalid image reference: %v", err),
			})
		}
	}

	return errs
}

// validateTriggers requires at least one trigger and valid cron expressions.
func validateTriggers(w *Workflow, errs *[]ValidationError) {
	t := w.Triggers
	if t.Push == nil && t.PullRequest == nil && len(t.Schedule) == 0 && !t.Dispatch {
		*errs = append(*errs, ValidationError{
			Field:   "workflow.triggers",
			Message: "at least one trigger is required",
		})
	}

	for i, rule := range t.Schedule {
		if rule.Cron == "" {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("workflow.triggers.schedule[%d].cron", i),
				Message: "is required",
			})
			continue
		}
		if _, err := cronParser.Parse(rule.Cron); err != nil {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("workflow.triggers.schedule[%d].cron", i),
				Message: fmt.Sprintf("invalid cron expression %q: %v", rule.Cron, err),
			})
		}
	}
}

// validateMatrix checks axis values and include references.
func validateMatrix(w *Workflow, errs *[]ValidationError) {
	m := w.Matrix

	if len(m.OS) == 0 {
		*errs = append(*errs, ValidationError{Field: "workflow.matrix.os", Message: "at least one os is required"})
	}
	if len(m.Python) == 0 {
		*errs = append(*errs, ValidationError{Field: "workflow.matrix.python", Message: "at least one python version is required"})
	}

	seenOS := make(map[string]bool)
	for i, v := range m.OS {
		if seenOS[v] {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("workflow.matrix.os[%d]", i),
				Message: fmt.Sprintf("duplicate value %q", v),
			})
		}
		seenOS[v] = true
	}

	seenPy := make(map[string]bool)
	for i, v := range m.Python {
		if seenPy[v] {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("workflow.matrix.python[%d]", i),
				Message: fmt.Sprintf("duplicate value %q", v),
			})
		}
		seenPy[v] = true

		if _, err := goversion.NewVersion(v); err != nil {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("workflow.matrix.python[%d]", i),
				Message: fmt.Sprintf("not a valid version %q: %v", v, err),
			})
		}
	}

	for i, ov := range m.Include {
		if ov.OS == "" {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("workflow.matrix.include[%d].os", i),
				Message: "is required",
			})
			continue
		}
		if !seenOS[ov.OS] {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("workflow.matrix.include[%d].os", i),
				Message: fmt.Sprintf("references undeclared os %q", ov.OS),
			})
		}
	}
}

// validateSteps requires the fixed instance step sequence to be fully defined
// with recognized parsers and parseable timeouts.
func validateSteps(w *Workflow, errs *[]ValidationError) {
	for _, required := range InstanceSteps {
		if _, ok := w.Steps[required]; !ok {
			*errs = append(*errs, ValidationError{
				Field:   "workflow.steps." + required,
				Message: "is required",
			})
		}
	}

	for stepName, s := range w.Steps {
		prefix := "workflow.steps." + stepName
		if s.Command == "" {
			*errs = append(*errs, ValidationError{Field: prefix + ".command", Message: "is required"})
		}
		if s.Parser != "" && !recognizedParsers[s.Parser] {
			*errs = append(*errs, ValidationError{
				Field:   prefix + ".parser",
				Message: fmt.Sprintf("unrecognized parser %q", s.Parser),
			})
		}
		if s.Timeout != "" {
			if _, err := time.ParseDuration(s.Timeout); err != nil {
				*errs = append(*errs, ValidationError{
					Field:   prefix + ".timeout",
					Message: fmt.Sprintf("invalid duration %q", s.Timeout),
				})
			}
		}
	}
}
