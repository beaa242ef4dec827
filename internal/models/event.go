package models

import (
	"time"

	"github.com/dmitrijs2005/kinsync/internal/syncstate"
)

// Event is a local calendar event. ConnectionID is empty for events that were
// created locally and never associated with a connection.
type Event struct {
	ID           string
	UserID       string
	ConnectionID string

	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	AllDay      bool

	ExternalID   string
	SyncStatus   syncstate.Status
	SyncMetadata EventSyncMetadata

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// EventPatch is a local edit; nil fields are left untouched.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	AllDay      *bool
}

// Apply writes the non-nil fields of p onto e and reports whether anything changed.
func (p EventPatch) Apply(e *Event) bool {
	changed := false
	if p.Title != nil && *p.Title != e.Title {
		e.Title, changed = *p.Title, true
	}
	if p.Description != nil && *p.Description != e.Description {
		e.Description, changed = *p.Description, true
	}
	if p.Location != nil && *p.Location != e.Location {
		e.Location, changed = *p.Location, true
	}
	if p.StartsAt != nil && !p.StartsAt.Equal(e.StartsAt) {
		e.StartsAt, changed = *p.StartsAt, true
	}
	if p.EndsAt != nil && !p.EndsAt.Equal(e.EndsAt) {
		e.EndsAt, changed = *p.EndsAt, true
	}
	if p.AllDay != nil && *p.AllDay != e.AllDay {
		e.AllDay, changed = *p.AllDay, true
	}
	return changed
}
