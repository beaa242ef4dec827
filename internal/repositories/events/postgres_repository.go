package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/syncstate"
	"github.com/google/uuid"
)

const eventColumns = `id, user_id, connection_id, title, description, location, starts_at, ends_at, all_day,
	external_id, sync_status, sync_metadata, created_at, updated_at, deleted_at`

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByExternalID(ctx context.Context, userID, connectionID, externalID string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE user_id = $1 AND connection_id = $2 AND external_id = $3 AND deleted_at IS NULL`
	return r.one(ctx, query, userID, connectionID, externalID)
}

// ListStartingBetween returns live events of the user that belong to the
// connection or to no connection, starting within [from, to].
func (r *PostgresRepository) ListStartingBetween(ctx context.Context, userID, connectionID string, from, to time.Time) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE user_id = $1 AND deleted_at IS NULL AND (connection_id = $2 OR connection_id IS NULL)
		AND starts_at BETWEEN $3 AND $4
		ORDER BY starts_at, id`
	return r.many(ctx, query, userID, connectionID, from, to)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	return r.one(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetForUpdate loads a live event and locks it for the surrounding transaction.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Event, error) {
	return r.one(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `INSERT INTO events (id, user_id, connection_id, title, description, location, starts_at, ends_at, all_day,
		external_id, sync_status, sync_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.UserID, nullString(e.ConnectionID), e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt, e.AllDay,
		e.ExternalID, string(e.SyncStatus), e.SyncMetadata, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}
	return nil
}

// Update writes every mutable column of a live event.
func (r *PostgresRepository) Update(ctx context.Context, e *models.Event) error {
	query := `UPDATE events SET connection_id = $2, title = $3, description = $4, location = $5, starts_at = $6,
		ends_at = $7, all_day = $8, external_id = $9, sync_status = $10, sync_metadata = $11, updated_at = $12
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query,
		e.ID, nullString(e.ConnectionID), e.Title, e.Description, e.Location, e.StartsAt,
		e.EndsAt, e.AllDay, e.ExternalID, string(e.SyncStatus), e.SyncMetadata, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.MapError(err))
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

// ListPending returns the events awaiting export to the connection: local
// only or pending push, owned by the connection or by none.
func (r *PostgresRepository) ListPending(ctx context.Context, userID, connectionID string) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE user_id = $1 AND deleted_at IS NULL AND (connection_id = $2 OR connection_id IS NULL)
		AND sync_status IN ('local_only', 'pending_push')
		ORDER BY starts_at, id`
	return r.many(ctx, query, userID, connectionID)
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, dbx.MapError(err)
	}
	return e, nil
}

func (r *PostgresRepository) many(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*models.Event, error) {
	var (
		e            models.Event
		connectionID sql.NullString
		status       string
		deletedAt    sql.NullTime
	)
	err := s.Scan(&e.ID, &e.UserID, &connectionID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt, &e.AllDay,
		&e.ExternalID, &status, &e.SyncMetadata, &e.CreatedAt, &e.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	e.ConnectionID = connectionID.String
	e.SyncStatus = syncstate.Status(status)
	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Time
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
