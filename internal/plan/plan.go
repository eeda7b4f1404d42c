// Package plan holds the Plan aggregate: an ordered list of steps, each
// backed by one tool execution, plus the append-only tool-call history the
// validator reasons over.
package plan

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/tabpilot/internal/llm"
	"github.com/rahul/tabpilot/internal/tools"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStep       = errors.New("unknown step")
	ErrStepDone          = errors.New("step is already done")
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusPaused    Status = "paused"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusPaused
}

// CanTransition reports whether from -> to moves the plan forward.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusExecuting
	case StatusExecuting:
		return to.Terminal()
	}
	return false
}

type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepInProgress   StepStatus = "in_progress"
	StepDone         StepStatus = "done"
	StepError        StepStatus = "error"
	StepWaitingHuman StepStatus = "waiting_human"
)

func (s StepStatus) valid() bool {
	switch s {
	case StepPending, StepInProgress, StepDone, StepError, StepWaitingHuman:
		return true
	}
	return false
}

type Step struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Order       int        `json:"order"`
}

// HistoryEntry records one executed tool call. Entries are never changed once
// appended.
type HistoryEntry struct {
	ID        string       `json:"id"`
	ToolCall  llm.ToolCall `json:"toolCall"`
	Reason    string       `json:"reason"`
	Result    tools.Result `json:"result"`
	Timestamp time.Time    `json:"timestamp"`
	StepID    string       `json:"stepId"`
}

type Plan struct {
	ID              string         `json:"id"`
	Status          Status         `json:"status"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	RequiresBrowser bool           `json:"requiresBrowser"`
	Steps           []Step         `json:"steps"`
	ToolCallHistory []HistoryEntry `json:"toolCallHistory"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// New builds a draft plan with an empty history. Steps are sorted by order;
// empty or duplicate step ids are rejected. Steps without a status start
// pending.
func New(title, description string, requiresBrowser bool, steps []Step) (Plan, error) {
	if len(steps) == 0 {
		return Plan{}, errors.New("plan has no steps")
	}
	seen := make(map[string]bool, len(steps))
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	for i := range sorted {
		s := &sorted[i]
		if s.ID == "" {
			return Plan{}, fmt.Errorf("step %d has no id", i+1)
		}
		if seen[s.ID] {
			return Plan{}, fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
		if !s.Status.valid() {
			s.Status = StepPending
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	now := time.Now()
	return Plan{
		ID:              uuid.NewString(),
		Status:          StatusDraft,
		Title:           title,
		Description:     description,
		RequiresBrowser: requiresBrowser,
		Steps:           sorted,
		ToolCallHistory: []HistoryEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	q := p
	q.Steps = append([]Step(nil), p.Steps...)
	q.ToolCallHistory = append([]HistoryEntry{}, p.ToolCallHistory...)
	return q
}

// Transition moves the plan status forward.
func (p Plan) Transition(to Status) (Plan, error) {
	if !CanTransition(p.Status, to) {
		return p, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	q := p.Clone()
	q.Status = to
	q.UpdatedAt = time.Now()
	return q, nil
}

// StepIndex returns the position of a step, or -1.
func (p Plan) StepIndex(id string) int {
	for i, s := range p.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Step returns the step with the given id.
func (p Plan) Step(id string) (Step, bool) {
	if i := p.StepIndex(id); i >= 0 {
		return p.Steps[i], true
	}
	return Step{}, false
}

// Current returns the index of the first step that is not done, or -1.
func (p Plan) Current() int {
	for i, s := range p.Steps {
		if s.Status != StepDone {
			return i
		}
	}
	return -1
}

// InProgress returns the id of the step in progress, or "".
func (p Plan) InProgress() string {
	for _, s := range p.Steps {
		if s.Status == StepInProgress {
			return s.ID
		}
	}
	return ""
}

// SetStepStatus changes one step. A done step never changes again, and only
// one step may be in progress.
func (p Plan) SetStepStatus(id string, status StepStatus) (Plan, error) {
	i := p.StepIndex(id)
	if i < 0 {
		return p, fmt.Errorf("%w: %s", ErrUnknownStep, id)
	}
	if !status.valid() {
		return p, fmt.Errorf("%w: step status %q", ErrInvalidTransition, status)
	}
	cur := p.Steps[i].Status
	if cur == status {
		return p, nil
	}
	if cur == StepDone {
		return p, fmt.Errorf("%w: %s", ErrStepDone, id)
	}
	if status == StepInProgress {
		if other := p.InProgress(); other != "" && other != id {
			return p, fmt.Errorf("%w: step %s is already in progress", ErrInvalidTransition, other)
		}
	}
	q := p.Clone()
	q.Steps[i].Status = status
	q.UpdatedAt = time.Now()
	return q, nil
}

// AppendHistory records an executed tool call against an existing step.
func (p Plan) AppendHistory(e HistoryEntry) (Plan, error) {
	if p.StepIndex(e.StepID) < 0 {
		return p, fmt.Errorf("%w: %s", ErrUnknownStep, e.StepID)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	q := p.Clone()
	q.ToolCallHistory = append(q.ToolCallHistory, e)
	q.UpdatedAt = e.Timestamp
	return q, nil
}

// Progress counts the done steps.
func (p Plan) Progress() (done, total int) {
	for _, s := range p.Steps {
		if s.Status == StepDone {
			done++
		}
	}
	return done, len(p.Steps)
}
