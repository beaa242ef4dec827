// Package syncstate is the per-event synchronization state machine.
//
// An event is local_only until it is first exported or imported, synced while
// its local content matches the last known external version, and
// pending_push after a local edit of a synced event. conflict is entered only
// through an explicit ConflictDetected trigger and left only through Resolve.
package syncstate

import (
	"fmt"

	"github.com/dmitrijs2005/kinsync/internal/common"
)

type Status string

const (
	LocalOnly   Status = "local_only"
	PendingPush Status = "pending_push"
	Synced      Status = "synced"
	Conflict    Status = "conflict"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case LocalOnly, PendingPush, Synced, Conflict:
		return true
	}
	return false
}

// NeedsPush reports whether an event in this state is selected for export.
func (s Status) NeedsPush() bool {
	return s == LocalOnly || s == PendingPush
}

// Trigger is an event that may move a record between states.
type Trigger string

const (
	LocalEdit        Trigger = "local_edit"
	ExportSucceeded  Trigger = "export_succeeded"
	ImportApplied    Trigger = "import_applied"
	ConflictDetected Trigger = "conflict_detected"
	Resolve          Trigger = "resolve"
)

// Transition returns the state reached from `from` on trigger t.
// Triggers that do not apply to a state return common.ErrInvalidTransition.
func Transition(from Status, t Trigger) (Status, error) {
	if !from.Valid() {
		return from, fmt.Errorf("%w: unknown status %q", common.ErrInvalidTransition, from)
	}
	switch t {
	case LocalEdit:
		return AfterLocalEdit(from), nil
	case ExportSucceeded, ImportApplied:
		if from == Conflict {
			return from, fmt.Errorf("%w: %s from %s", common.ErrInvalidTransition, t, from)
		}
		return Synced, nil
	case ConflictDetected:
		return Conflict, nil
	case Resolve:
		if from != Conflict {
			return from, fmt.Errorf("%w: %s from %s", common.ErrInvalidTransition, t, from)
		}
		return PendingPush, nil
	default:
		return from, fmt.Errorf("%w: unknown trigger %q", common.ErrInvalidTransition, t)
	}
}

// AfterLocalEdit is the state after a local mutation. Only synced records
// change; local_only stays local_only because nothing external exists yet.
func AfterLocalEdit(from Status) Status {
	if from == Synced {
		return PendingPush
	}
	return from
}
