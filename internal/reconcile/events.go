package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/syncstate"
)

// EventMatchWindow is the largest start-time difference at which two events
// with the same title are considered the same event.
const EventMatchWindow = time.Hour

// EventLookup is the read side of the event resolver.
type EventLookup interface {
	// GetByExternalID returns common.ErrorNotFound when no event of the user
	// carries externalID for the connection.
	GetByExternalID(ctx context.Context, userID, connectionID, externalID string) (*models.Event, error)
	// ListStartingBetween returns the user's live events that belong to the
	// connection or to none, starting in [from, to].
	ListStartingBetween(ctx context.Context, userID, connectionID string, from, to time.Time) ([]*models.Event, error)
}

// TitlesMatch compares titles case-insensitively after trimming.
func TitlesMatch(a, b string) bool {
	return FoldTitle(a) == FoldTitle(b)
}

// WithinWindow reports whether a and b are at most EventMatchWindow apart.
func WithinWindow(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= EventMatchWindow
}

// MatchEvent picks, among candidates, the event with an equal title whose
// start lies within the window of rec's start, preferring the closest start.
// A candidate already linked to another external id is never taken.
func MatchEvent(candidates []*models.Event, rec models.EventRecord) *models.Event {
	extID := strings.TrimSpace(rec.ExternalID)
	var best *models.Event
	var bestDelta time.Duration
	for _, c := range candidates {
		if c == nil || !TitlesMatch(c.Title, rec.Title) || !WithinWindow(c.StartsAt, rec.StartsAt) {
			continue
		}
		if c.ExternalID != "" && c.ExternalID != extID {
			continue
		}
		d := c.StartsAt.Sub(rec.StartsAt)
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDelta {
			best, bestDelta = c, d
		}
	}
	return best
}

// ResolveEvent runs the event fallback chain: exact external id, then title
// plus start-time window.
func ResolveEvent(ctx context.Context, l EventLookup, userID, connectionID string, rec models.EventRecord) (*models.Event, MatchRule, error) {
	if id := strings.TrimSpace(rec.ExternalID); id != "" {
		e, err := l.GetByExternalID(ctx, userID, connectionID, id)
		switch {
		case err == nil && e != nil:
			return e, MatchExternalID, nil
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return nil, MatchNone, err
		}
	}

	if strings.TrimSpace(rec.Title) == "" || rec.StartsAt.IsZero() {
		return nil, MatchNone, nil
	}

	candidates, err := l.ListStartingBetween(ctx, userID, connectionID,
		rec.StartsAt.Add(-EventMatchWindow), rec.StartsAt.Add(EventMatchWindow))
	if err != nil {
		return nil, MatchNone, err
	}
	if e := MatchEvent(candidates, rec); e != nil {
		return e, MatchTitleWindow, nil
	}
	return nil, MatchNone, nil
}

// EventDecision is what the importer does with a matched event.
type EventDecision int

const (
	EventCreate EventDecision = iota
	EventOverwrite
	EventSkip
)

// DecideEvent compares a matched local event with rec. An unchanged,
// previously recorded etag is a no-op; any other difference, including a
// local event that never had an etag, overwrites. Events in conflict are
// left for explicit resolution.
func DecideEvent(local *models.Event, rec models.EventRecord) EventDecision {
	if local == nil {
		return EventCreate
	}
	if local.SyncStatus == syncstate.Conflict {
		return EventSkip
	}
	if local.SyncMetadata.ETag != "" && local.SyncMetadata.ETag == rec.ETag {
		return EventSkip
	}
	return EventOverwrite
}

// ApplyEventRecord overwrites e from the external copy and moves it to
// synced. An event in conflict is left untouched and
// common.ErrInvalidTransition is returned.
func ApplyEventRecord(e *models.Event, connectionID, source string, rec models.EventRecord, now time.Time) error {
	next, err := syncstate.Transition(e.SyncStatus, syncstate.ImportApplied)
	if err != nil {
		return err
	}
	e.ConnectionID = connectionID
	e.Title = strings.TrimSpace(rec.Title)
	e.Description = rec.Description
	e.Location = rec.Location
	e.StartsAt = rec.StartsAt
	e.EndsAt = rec.EndsAt
	e.AllDay = rec.AllDay
	if id := strings.TrimSpace(rec.ExternalID); id != "" {
		e.ExternalID = id
	}
	e.SyncMetadata = models.EventSyncMetadata{ETag: rec.ETag, Source: source}
	e.SyncStatus = next
	e.UpdatedAt = now
	return nil
}

// NewEventFromRecord builds a synced local event for an unmatched record.
func NewEventFromRecord(userID, connectionID, source string, rec models.EventRecord, now time.Time) *models.Event {
	e := &models.Event{UserID: userID, SyncStatus: syncstate.LocalOnly, CreatedAt: now}
	// local_only always accepts an import.
	_ = ApplyEventRecord(e, connectionID, source, rec, now)
	return e
}
