// Package events stores calendar events together with their sync status.
package events

import (
	"context"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
)

type Repository interface {
	GetByExternalID(ctx context.Context, userID, connectionID, externalID string) (*models.Event, error)
	ListStartingBetween(ctx context.Context, userID, connectionID string, from, to time.Time) ([]*models.Event, error)
	Get(ctx context.Context, id string) (*models.Event, error)
	GetForUpdate(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, e *models.Event) error
	Update(ctx context.Context, e *models.Event) error
	ListPending(ctx context.Context, userID, connectionID string) ([]*models.Event, error)
}
