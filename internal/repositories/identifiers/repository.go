// Package identifiers stores the email and phone identifiers attached to
// contact entities.
package identifiers

import (
	"context"

	"github.com/dmitrijs2005/kinsync/internal/models"
)

type Repository interface {
	ListByEntity(ctx context.Context, entityID string) ([]models.Identifier, error)
	Create(ctx context.Context, id *models.Identifier) error
}
