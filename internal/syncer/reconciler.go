package syncer

import (
	"github.com/S1monlol/notionCanvas/internal/models"
)

// Action is the outcome decided for one event.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdateDueDate
	ActionSkipUnchanged
	ActionSkipUnmatched
	ActionSkipDuplicate
	ActionSkipFailed
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdateDueDate:
		return "update_due_date"
	case ActionSkipUnchanged:
		return "skip_unchanged"
	case ActionSkipUnmatched:
		return "skip_unmatched"
	case ActionSkipDuplicate:
		return "skip_duplicate"
	case ActionSkipFailed:
		return "skip_failed"
	default:
		return "unknown"
	}
}

// Writes reports whether the action needs a write call.
func (a Action) Writes() bool {
	return a == ActionCreate || a == ActionUpdateDueDate
}

const (
	reasonUnmatched = "No saved class matched"
	reasonUnchanged = "Already up to date"
	reasonDuplicate = "Duplicate assignment in calendar"
)

// Decision is what the reconciler wants done with one assignment.
type Decision struct {
	Action     Action
	Assignment models.NormalizedAssignment
	Existing   *models.ExistingRecord
	Reason     string
}

// Reconciler decides per assignment against a fixed index. It is owned by a
// single run and is not safe for concurrent use.
type Reconciler struct {
	index   *Index
	claimed map[string]bool
}

func NewReconciler(index *Index) *Reconciler {
	if index == nil {
		index = NewIndex(nil)
	}
	return &Reconciler{index: index, claimed: make(map[string]bool)}
}

// Decide evaluates one assignment. The index is never modified; instead a
// base title that already produced a matched decision in this run turns later
// events with the same base title into duplicates.
func (r *Reconciler) Decide(a models.NormalizedAssignment) Decision {
	if a.Category == nil {
		return Decision{Action: ActionSkipUnmatched, Assignment: a, Reason: reasonUnmatched}
	}
	if r.claimed[a.BaseTitle] {
		return Decision{Action: ActionSkipDuplicate, Assignment: a, Reason: reasonDuplicate}
	}
	r.claimed[a.BaseTitle] = true

	existing, ok := r.index.Lookup(a.BaseTitle)
	if !ok {
		return Decision{Action: ActionCreate, Assignment: a}
	}
	if existing.DueDate == a.DueDate {
		return Decision{Action: ActionSkipUnchanged, Assignment: a, Existing: existing, Reason: reasonUnchanged}
	}
	return Decision{Action: ActionUpdateDueDate, Assignment: a, Existing: existing}
}
