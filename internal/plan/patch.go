package plan

import (
	"sort"
	"time"
)

// StepPatch is a partial step keyed by id. Nil fields are left alone.
type StepPatch struct {
	ID          string      `json:"id"`
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *StepStatus `json:"status,omitempty"`
	Order       *int        `json:"order,omitempty"`
}

// Patch is a partial plan as returned by the validator. Steps are merged by
// id; the steps array is never replaced.
type Patch struct {
	Title           *string     `json:"title,omitempty"`
	Description     *string     `json:"description,omitempty"`
	Status          *Status     `json:"status,omitempty"`
	RequiresBrowser *bool       `json:"requiresBrowser,omitempty"`
	Steps           []StepPatch `json:"steps,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (pt *Patch) Empty() bool {
	return pt == nil || (pt.Title == nil && pt.Description == nil && pt.Status == nil &&
		pt.RequiresBrowser == nil && len(pt.Steps) == 0)
}

// ApplyPatch merges pt into p and returns the result. Changes that would break
// the plan invariants are dropped: unknown step ids, any change to a done
// step, a second in-progress step, an invalid status, and a plan status that
// does not move forward.
func ApplyPatch(p Plan, pt *Patch) Plan {
	if pt.Empty() {
		return p
	}
	q := p.Clone()

	if pt.Title != nil {
		q.Title = *pt.Title
	}
	if pt.Description != nil {
		q.Description = *pt.Description
	}
	if pt.RequiresBrowser != nil {
		q.RequiresBrowser = *pt.RequiresBrowser
	}
	if pt.Status != nil && CanTransition(q.Status, *pt.Status) {
		q.Status = *pt.Status
	}

	reorder := false
	for _, sp := range pt.Steps {
		i := q.StepIndex(sp.ID)
		if i < 0 || q.Steps[i].Status == StepDone {
			continue
		}
		s := q.Steps[i]
		if sp.Title != nil {
			s.Title = *sp.Title
		}
		if sp.Description != nil {
			s.Description = *sp.Description
		}
		if sp.Order != nil && *sp.Order != s.Order {
			s.Order = *sp.Order
			reorder = true
		}
		if sp.Status != nil && sp.Status.valid() {
			next := *sp.Status
			other := q.InProgress()
			if next != StepInProgress || other == "" || other == s.ID {
				s.Status = next
			}
		}
		q.Steps[i] = s
	}
	if reorder {
		sort.SliceStable(q.Steps, func(i, j int) bool { return q.Steps[i].Order < q.Steps[j].Order })
	}

	q.UpdatedAt = time.Now()
	return q
}
