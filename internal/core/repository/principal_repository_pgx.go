package repository

import (
	"context"

	"github.com/duynhne/account-dashboard/internal/core/domain"
)

const upsertPrincipalQuery = `
	INSERT INTO principals (subject, email, display_name, first_login, last_login)
	VALUES ($1, $2, $3, $4, $4)
	ON CONFLICT (subject) DO UPDATE
	SET email = EXCLUDED.email,
	    display_name = EXCLUDED.display_name,
	    last_login = EXCLUDED.last_login
`

// PgxPrincipalRepository implements domain.PrincipalRepository using pgxpool.
type PgxPrincipalRepository struct {
	pool Querier
}

// NewPrincipalRepository creates a new PgxPrincipalRepository.
func NewPrincipalRepository(pool Querier) *PgxPrincipalRepository {
	return &PgxPrincipalRepository{pool: pool}
}

// RecordLogin upserts the principal and sets last_login.
func (r *PgxPrincipalRepository) RecordLogin(ctx context.Context, p domain.Principal) error {
	_, err := r.pool.Exec(ctx, upsertPrincipalQuery, p.Subject, p.Email, p.DisplayName, p.LoginAt)
	return err
}
