// Package providers defines the capability every external contact/calendar
// source implements and the plumbing the adapters share: a rate-limited,
// retrying HTTP client and a bounded fan-out helper. Provider wire formats
// never leave the adapter packages.
package providers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
)

// ContactPage is one page of normalized contact records from a source. An
// empty NextCursor means the source is exhausted.
type ContactPage struct {
	Records    []models.ContactRecord
	NextCursor string
	// ItemErrors holds per-item failures that were skipped while building
	// the page.
	ItemErrors []error
}

// Provider is the contact capability of an external account.
type Provider interface {
	Kind() models.Provider
	// ContactSources lists the independent contact feeds of the provider in
	// the order they are imported.
	ContactSources() []string
	FetchContacts(ctx context.Context, token, source, cursor string) (ContactPage, error)
}

// CalendarProvider is implemented by providers that also sync events.
type CalendarProvider interface {
	Provider
	FetchEvents(ctx context.Context, token string) ([]models.EventRecord, error)
	// CreateEvent pushes a new event and returns the remote copy with its
	// external id and etag.
	CreateEvent(ctx context.Context, token string, rec models.EventRecord) (models.EventRecord, error)
	// UpdateEvent overwrites the remote event rec.ExternalID.
	UpdateEvent(ctx context.Context, token string, rec models.EventRecord) (models.EventRecord, error)
}

// Registry selects the provider variant of a connection.
type Registry struct {
	byKind map[models.Provider]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{byKind: make(map[models.Provider]Provider, len(ps))}
	for _, p := range ps {
		r.byKind[p.Kind()] = p
	}
	return r
}

// ForConnection returns the provider serving conn.
func (r *Registry) ForConnection(conn *models.Connection) (Provider, error) {
	p, ok := r.byKind[conn.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedProvider, conn.Provider)
	}
	return p, nil
}

// Calendar narrows p to its calendar capability.
func Calendar(p Provider) (CalendarProvider, error) {
	cp, ok := p.(CalendarProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotCalendarProvider, p.Kind())
	}
	return cp, nil
}
