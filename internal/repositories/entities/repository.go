// Package entities provides PostgreSQL-backed storage for contact entities
// and the lookups the contact resolver runs against it.
package entities

import (
	"context"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
)

type Repository interface {
	GetByExternalID(ctx context.Context, userID, provider, externalID string) (*models.Entity, error)
	GetByIdentifier(ctx context.Context, userID string, kind models.IdentifierKind, normalized string) (*models.Entity, error)
	GetByName(ctx context.Context, userID, name string) (*models.Entity, error)
	GetForUpdate(ctx context.Context, id string) (*models.Entity, error)
	Create(ctx context.Context, e *models.Entity) error
	Update(ctx context.Context, e *models.Entity) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	CountByUser(ctx context.Context, userID string) (int, error)
}
