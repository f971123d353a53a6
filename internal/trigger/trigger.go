package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/conveyorci/conveyor/internal/config"
)

// EventKind identifies the source event that may start a run.
type EventKind string

const (
	Push        EventKind = "push"
	PullRequest EventKind = "pull_request"
	Schedule    EventKind = "schedule"
	Dispatch    EventKind = "dispatch"
)

// RefKind distinguishes branch refs from tag refs. Exactly one variant applies
// to any event; tag derivation in the publish stage switches on it exhaustively.
type RefKind string

const (
	Branch RefKind = "branch"
	Tag    RefKind = "tag"
)

// Event is an incoming source event: what happened, on which ref, and when.
type Event struct {
	Kind    EventKind `json:"kind"`
	Ref     string    `json:"ref"`      // branch or tag name, e.g. "main", "v1.2.0"
	RefKind RefKind   `json:"ref_kind"`
	Time    time.Time `json:"time"` // used only for schedule matching
}

// ParseEventKind converts a string into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case Push, PullRequest, Schedule, Dispatch:
		return EventKind(s), nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// ParseRefKind converts a string into a RefKind.
func ParseRefKind(s string) (RefKind, error) {
	switch RefKind(s) {
	case Branch, Tag:
		return RefKind(s), nil
	}
	return "", fmt.Errorf("unknown ref kind %q (want branch or tag)", s)
}

// Resolver decides whether an incoming event starts a pipeline run.
type Resolver struct {
	triggers config.Triggers
}

// NewResolver creates a Resolver for the given trigger rules.
func NewResolver(triggers config.Triggers) *Resolver {
	return &Resolver{triggers: triggers}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Resolve returns true if the event matches a trigger rule. Push and pull
// request events honor branch filters; dispatch events are never filtered;
// schedule events match when the event time lands on a cron tick.
func (r *Resolver) Resolve(ev Event) (bool, error) {
	switch ev.Kind {
	case Push:
		if r.triggers.Push == nil {
			return false, nil
		}
		// Tag pushes bypass the branch filter: the filter constrains branches only.
		if ev.RefKind == Tag {
			return true, nil
		}
		return matchBranch(r.triggers.Push.Branches, ev.Ref), nil

	case PullRequest:
		if r.triggers.PullRequest == nil {
			return false, nil
		}
		return matchBranch(r.triggers.PullRequest.Branches, ev.Ref), nil

	case Schedule:
		for _, rule := range r.triggers.Schedule {
			sched, err := cronParser.Parse(rule.Cron)
			if err != nil {
				return false, fmt.Errorf("parse cron %q: %w", rule.Cron, err)
			}
			if matchesTick(sched, ev.Time) {
				return true, nil
			}
		}
		return false, nil

	case Dispatch:
		// Manual dispatch carries no branch restriction.
		return r.triggers.Dispatch, nil
	}

	return false, fmt.Errorf("unknown event kind %q", ev.Kind)
}

// matchBranch returns true if ref is in the filter list. An empty list matches
// any branch.
func matchBranch(branches []string, ref string) bool {
	if len(branches) == 0 {
		return true
	}
	for _, b := range branches {
		if b == ref {
			return true
		}
	}
	return false
}

// matchesTick reports whether t (truncated to the minute) is a firing time of
// the schedule.
func matchesTick(sched cron.Schedule, t time.Time) bool {
	minute := t.Truncate(time.Minute)
	next := sched.Next(minute.Add(-time.Second))
	return next.Equal(minute)
}
