package connections

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/google/uuid"
)

const connectionColumns = `id, user_id, provider, access_token, refresh_token, token_expires_at, last_synced_at, last_error, active, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX. A nil sealer
// stores tokens as plain bytes.
type PostgresRepository struct {
	db     dbx.DBTX
	sealer Sealer
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX, sealer Sealer) *PostgresRepository {
	return &PostgresRepository{db: db, sealer: sealer}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	c, err := r.scan(row)
	if err != nil {
		return nil, dbx.MapError(err)
	}
	return c, nil
}

// ListActive returns every active connection, oldest sync first.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE active ORDER BY last_synced_at NULLS FIRST, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Connection
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Create inserts a connection. A second connection of the same provider for
// a user yields common.ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, c *models.Connection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	access, refresh, err := r.sealPair(c.AccessToken, c.RefreshToken)
	if err != nil {
		return err
	}
	query := `INSERT INTO connections (id, user_id, provider, access_token, refresh_token, token_expires_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.UserID, string(c.Provider), access, refresh, nullTime(c.TokenExpiresAt), c.Active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}
	return nil
}

// UpdateTokens persists a refreshed token pair. An empty refreshToken keeps
// the stored one.
func (r *PostgresRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	access, refresh, err := r.sealPair(accessToken, refreshToken)
	if err != nil {
		return err
	}
	var refreshArg any
	if refresh != nil {
		refreshArg = refresh
	}
	query := `UPDATE connections SET access_token = $2, refresh_token = COALESCE($3, refresh_token),
		token_expires_at = $4, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, access, refreshArg, nullTime(expiresAt))
}

// MarkSynced records a successful run and clears the last error.
func (r *PostgresRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE connections SET last_synced_at = $2, last_error = '', updated_at = $2 WHERE id = $1`, id, at)
}

// SetError records the error of a failed run on the connection.
func (r *PostgresRepository) SetError(ctx context.Context, id, msg string, at time.Time) error {
	return r.exec(ctx, `UPDATE connections SET last_error = $2, updated_at = $3 WHERE id = $1`, id, msg, at)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scan(s scanner) (*models.Connection, error) {
	var (
		c                 models.Connection
		provider          string
		access, refresh   []byte
		expires, lastSync sql.NullTime
	)
	err := s.Scan(&c.ID, &c.UserID, &provider, &access, &refresh, &expires, &lastSync,
		&c.LastError, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Provider = models.Provider(provider)
	if expires.Valid {
		c.TokenExpiresAt = expires.Time
	}
	if lastSync.Valid {
		c.LastSyncedAt = &lastSync.Time
	}
	if c.AccessToken, err = r.open(access); err != nil {
		return nil, err
	}
	if c.RefreshToken, err = r.open(refresh); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) sealPair(access, refresh string) ([]byte, []byte, error) {
	a, err := r.seal(access)
	if err != nil {
		return nil, nil, err
	}
	b, err := r.seal(refresh)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (r *PostgresRepository) seal(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	if r.sealer == nil {
		return []byte(token), nil
	}
	out, err := r.sealer.Seal([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("seal token: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) open(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	if r.sealer == nil {
		return string(b), nil
	}
	out, err := r.sealer.Open(b)
	if err != nil {
		return "", fmt.Errorf("open token: %w", err)
	}
	return string(out), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
