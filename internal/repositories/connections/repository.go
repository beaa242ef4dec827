// Package connections stores provider connections and their OAuth tokens.
// Tokens are sealed at rest when a Sealer is configured.
package connections

import (
	"context"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.Connection, error)
	ListActive(ctx context.Context) ([]models.Connection, error)
	Create(ctx context.Context, c *models.Connection) error
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
	SetError(ctx context.Context, id, msg string, at time.Time) error
}

// Sealer encrypts token bytes before they are written and decrypts them
// after they are read.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}
