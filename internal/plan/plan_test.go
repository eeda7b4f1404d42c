package plan

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/tools"
)

func twoStepPlan(t *testing.T) Plan {
	t.Helper()
	p, err := New("Compare prices", "Find and compare prices", true, []Step{
		{ID: "step_2", Title: "Read page", Order: 2},
		{ID: "step_1", Title: "Open shop", Order: 1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew(t *testing.T) {
	p := twoStepPlan(t)
	if p.Status != StatusDraft || p.ID == "" {
		t.Fatalf("unexpected plan header: %+v", p)
	}
	if p.Steps[0].ID != "step_1" || p.Steps[1].ID != "step_2" {
		t.Errorf("steps not sorted by order: %+v", p.Steps)
	}
	for _, s := range p.Steps {
		if s.Status != StepPending {
			t.Errorf("step %s should start pending, got %s", s.ID, s.Status)
		}
	}
	if p.ToolCallHistory == nil || len(p.ToolCallHistory) != 0 {
		t.Errorf("history should be empty, got %v", p.ToolCallHistory)
	}

	if _, err := New("x", "", false, []Step{{ID: "a"}, {ID: "a"}}); err == nil {
		t.Error("expected duplicate id error")
	}
	if _, err := New("x", "", false, []Step{{Title: "no id"}}); err == nil {
		t.Error("expected empty id error")
	}
	if _, err := New("x", "", false, nil); err == nil {
		t.Error("expected error for a plan without steps")
	}
}

func TestTransition_Monotonic(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusExecuting, true},
		{StatusDraft, StatusCompleted, false},
		{StatusExecuting, StatusCompleted, true},
		{StatusExecuting, StatusPaused, true},
		{StatusExecuting, StatusError, true},
		{StatusExecuting, StatusDraft, false},
		{StatusCompleted, StatusExecuting, false},
		{StatusPaused, StatusExecuting, false},
		{StatusError, StatusDraft, false},
	}
	for _, tt := range tests {
		p := Plan{Status: tt.from}
		q, err := p.Transition(tt.to)
		if tt.ok {
			if err != nil || q.Status != tt.to {
				t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) || q.Status != tt.from {
			t.Errorf("%s -> %s: expected rejection, got %v", tt.from, tt.to, err)
		}
	}
}

func TestSetStepStatus(t *testing.T) {
	p := twoStepPlan(t)

	p, err := p.SetStepStatus("step_1", StepInProgress)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetStepStatus("step_2", StepInProgress); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected a second in-progress step to be rejected, got %v", err)
	}

	p, err = p.SetStepStatus("step_1", StepDone)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetStepStatus("step_1", StepInProgress); !errors.Is(err, ErrStepDone) {
		t.Errorf("expected done step to stay done, got %v", err)
	}
	if _, err := p.SetStepStatus("nope", StepDone); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected unknown step error, got %v", err)
	}
	if p.Current() != 1 {
		t.Errorf("expected cursor on step_2, got %d", p.Current())
	}
}

func TestAppendHistory(t *testing.T) {
	p := twoStepPlan(t)
	entry := HistoryEntry{
		ToolCall: llm.ToolCall{ID: "c1", Function: llm.FunctionCall{Name: "open_tab"}},
		Reason:   "open the shop",
		Result:   tools.Result{ToolCallID: "c1", FunctionName: "open_tab", Content: "ok", Success: true},
		StepID:   "step_1",
	}

	q, err := p.AppendHistory(entry)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.ToolCallHistory) != 0 {
		t.Error("AppendHistory modified the receiver")
	}
	if len(q.ToolCallHistory) != 1 || q.ToolCallHistory[0].ID == "" || q.ToolCallHistory[0].Timestamp.IsZero() {
		t.Errorf("unexpected history %+v", q.ToolCallHistory)
	}

	entry.StepID = "ghost"
	if _, err := q.AppendHistory(entry); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected unknown step error, got %v", err)
	}
}

func TestApplyPatch_TouchesOnlyReferencedStep(t *testing.T) {
	p := twoStepPlan(t)
	before := p.Clone()

	var pt Patch
	if err := json.Unmarshal([]byte(`{"steps":[{"id":"step_1","status":"done"}]}`), &pt); err != nil {
		t.Fatal(err)
	}
	q := ApplyPatch(p, &pt)

	if q.Steps[0].Status != StepDone {
		t.Errorf("step_1 not done: %+v", q.Steps[0])
	}
	if q.Steps[0].Title != before.Steps[0].Title || q.Steps[0].Order != before.Steps[0].Order {
		t.Errorf("step_1 lost fields: %+v", q.Steps[0])
	}
	if q.Steps[1] != before.Steps[1] {
		t.Errorf("step_2 changed: %+v", q.Steps[1])
	}
	if q.Title != before.Title || q.Description != before.Description || q.Status != before.Status ||
		q.RequiresBrowser != before.RequiresBrowser || q.ID != before.ID {
		t.Errorf("top-level fields changed: %+v", q)
	}
	if p.Steps[0].Status != StepPending {
		t.Error("ApplyPatch modified its input")
	}
}

func TestApplyPatch_KeepsInvariants(t *testing.T) {
	p := twoStepPlan(t)
	p, _ = p.SetStepStatus("step_1", StepDone)
	p, _ = p.SetStepStatus("step_2", StepInProgress)
	p, _ = p.Transition(StatusExecuting)

	var pt Patch
	raw := `{
		"title": "Renamed",
		"status": "draft",
		"steps": [
			{"id": "step_1", "status": "pending", "title": "rewritten"},
			{"id": "ghost", "status": "done"},
			{"id": "step_2", "description": "read the pricing table"}
		]
	}`
	if err := json.Unmarshal([]byte(raw), &pt); err != nil {
		t.Fatal(err)
	}
	q := ApplyPatch(p, &pt)

	if q.Title != "Renamed" {
		t.Errorf("title not applied: %q", q.Title)
	}
	if q.Status != StatusExecuting {
		t.Errorf("plan status moved backwards to %s", q.Status)
	}
	if q.Steps[0].Status != StepDone || q.Steps[0].Title != "Open shop" {
		t.Errorf("done step was revisited: %+v", q.Steps[0])
	}
	if len(q.Steps) != 2 {
		t.Errorf("unknown step was added: %+v", q.Steps)
	}
	if q.Steps[1].Description != "read the pricing table" || q.Steps[1].Status != StepInProgress {
		t.Errorf("step_2 not merged: %+v", q.Steps[1])
	}
}

func TestApplyPatch_SingleInProgress(t *testing.T) {
	p := twoStepPlan(t)
	p, _ = p.SetStepStatus("step_1", StepInProgress)

	inProgress := StepInProgress
	q := ApplyPatch(p, &Patch{Steps: []StepPatch{{ID: "step_2", Status: &inProgress}}})
	if q.Steps[1].Status != StepPending {
		t.Errorf("second in-progress step accepted: %+v", q.Steps)
	}
}
