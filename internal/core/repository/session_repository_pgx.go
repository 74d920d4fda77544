package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duynhne/account-dashboard/internal/core/domain"
)

// Querier is the subset of *pgxpool.Pool the pgx repositories use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	insertSessionQuery = `
		INSERT INTO dashboard_sessions
			(id, subject, name, email, id_token, access_token, refresh_token, token_expiry, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	selectSessionQuery = `
		SELECT id, subject, name, email, id_token, access_token, refresh_token, token_expiry, created_at, expires_at
		FROM dashboard_sessions
		WHERE id = $1
	`
	deleteSessionQuery = `DELETE FROM dashboard_sessions WHERE id = $1`
)

// PgxSessionRepository implements domain.SessionRepository using pgxpool.
type PgxSessionRepository struct {
	pool Querier
}

// NewSessionRepository creates a new PgxSessionRepository.
func NewSessionRepository(pool Querier) *PgxSessionRepository {
	return &PgxSessionRepository{pool: pool}
}

// Create inserts a new session record.
func (r *PgxSessionRepository) Create(ctx context.Context, rec domain.SessionRecord) error {
	_, err := r.pool.Exec(ctx, insertSessionQuery,
		rec.ID, rec.Subject, rec.Name, rec.Email,
		rec.IDToken, rec.AccessToken, rec.RefreshToken, rec.TokenExpiry,
		rec.CreatedAt, rec.ExpiresAt,
	)
	return err
}

// Get looks up the session record by ID.
// Returns (nil, nil) when the ID does not match any session.
func (r *PgxSessionRepository) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := r.pool.QueryRow(ctx, selectSessionQuery, id).Scan(
		&rec.ID, &rec.Subject, &rec.Name, &rec.Email,
		&rec.IDToken, &rec.AccessToken, &rec.RefreshToken, &rec.TokenExpiry,
		&rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &rec, nil
}

// Delete removes the session record.
func (r *PgxSessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, deleteSessionQuery, id)
	return err
}
