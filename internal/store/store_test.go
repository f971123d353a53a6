package store

import (
	"testing"
	"time"

	"github.com/conveyorci/conveyor/internal/trigger"
)

func testEvent() trigger.Event {
	return trigger.Event{Kind: trigger.Push, Ref: "main", RefKind: trigger.Branch}
}

func testInstances() []InstanceRecord {
	return []InstanceRecord{
		{Name: "ubuntu/py3.10", OS: "ubuntu", Python: "3.10", Status: StatusPending},
		{Name: "ubuntu/py3.11", OS: "ubuntu", Python: "3.11", Status: StatusPending},
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore(t.TempDir())

	rs, err := s.Create("run-1", "mosdef-gomc-ci", testEvent(), testInstances())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs.Status != StatusPending {
		t.Errorf("expected pending, got %q", rs.Status)
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Workflow != "mosdef-gomc-ci" {
		t.Errorf("unexpected workflow: %q", got.Workflow)
	}
	if len(got.Instances) != 2 {
		t.Errorf("expected 2 instances, got %d", len(got.Instances))
	}
	if got.Event.Kind != trigger.Push {
		t.Errorf("unexpected event kind: %q", got.Event.Kind)
	}
}

func TestStore_CreateDuplicate(t *testing.T) {
	s := NewStore(t.TempDir())

	if _, err := s.Create("run-1", "wf", testEvent(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Create("run-1", "wf", testEvent(), nil); err == nil {
		t.Fatal("expected error for duplicate run")
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Get("nope"); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestStore_Update(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Create("run-1", "wf", testEvent(), testInstances()); err != nil {
		t.Fatal(err)
	}

	err := s.Update("run-1", func(rs *RunState) {
		rs.Status = StatusRunning
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.Get("run-1")
	if got.Status != StatusRunning {
		t.Errorf("expected running, got %q", got.Status)
	}
}

func TestStore_UpdateInstance(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Create("run-1", "wf", testEvent(), testInstances()); err != nil {
		t.Fatal(err)
	}

	err := s.UpdateInstance("run-1", "ubuntu/py3.11", func(in *InstanceRecord) {
		in.Status = StatusFailed
		in.FailedStep = "test"
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.Get("run-1")
	if got.Instances[0].Status != StatusPending {
		t.Errorf("sibling instance mutated: %+v", got.Instances[0])
	}
	if got.Instances[1].Status != StatusFailed || got.Instances[1].FailedStep != "test" {
		t.Errorf("unexpected instance record: %+v", got.Instances[1])
	}
}

func TestStore_ListFiltered(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Create("run-1", "wf", testEvent(), nil)
	s.Create("run-2", "wf", testEvent(), nil)
	s.Update("run-2", func(rs *RunState) { rs.Status = StatusPassed })

	all, err := s.List("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(all))
	}
	// Newest (highest id) first.
	if all[0].ID != "run-2" {
		t.Errorf("expected run-2 first, got %q", all[0].ID)
	}

	passed, err := s.List(StatusPassed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(passed) != 1 || passed[0].ID != "run-2" {
		t.Errorf("unexpected filtered list: %+v", passed)
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Create("run-1", "wf", testEvent(), nil)

	if err := s.Delete("run-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get("run-1"); err == nil {
		t.Fatal("expected run to be gone")
	}
	if err := s.Delete("run-1"); err == nil {
		t.Fatal("expected error deleting missing run")
	}
}

func TestStore_StepOutputRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	s.Create("run-1", "wf", testEvent(), testInstances())

	if err := s.SaveStepOutput("run-1", "ubuntu/py3.10", "test", "42 passed", "warnings"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := s.GetStepOutput("run-1", "ubuntu/py3.10", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "42 passed" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNewRunID_Ordered(t *testing.T) {
	a := NewRunID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := NewRunID(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	if !(a < b) {
		t.Errorf("expected ids to sort by time: %q vs %q", a, b)
	}
}
