package domain

import (
	"context"
	"time"
)

// SessionRecord is the server-side half of a browser's persisted
// credentials. The browser only holds the signed record ID.
type SessionRecord struct {
	ID      string `json:"id"`
	Subject string `json:"sub"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`

	IDToken      string    `json:"id_token,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session returns the principal view of the record.
func (r SessionRecord) Session() Session {
	return Session{
		Subject:   r.Subject,
		Name:      r.Name,
		Email:     r.Email,
		ExpiresAt: r.ExpiresAt,
	}
}

// SessionRepository defines the data-access contract for persisted sessions.
// Implementations live in internal/core/repository (Core layer).
type SessionRepository interface {
	// Create stores a new session record. Implementations may drop the
	// record once ExpiresAt has passed.
	Create(ctx context.Context, rec SessionRecord) error

	// Get returns the record with the given ID.
	// Returns (nil, nil) when no record matches.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
}
