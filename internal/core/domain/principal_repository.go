package domain

import (
	"context"
	"time"
)

// Principal is the login log entry written after each successful callback.
type Principal struct {
	Subject     string
	Email       string
	DisplayName string
	LoginAt     time.Time
}

// PrincipalRepository records which principals signed in to the dashboard
// and when. Implementations live in internal/core/repository (Core layer).
type PrincipalRepository interface {
	// RecordLogin inserts the principal or updates its profile fields and
	// last_login timestamp.
	RecordLogin(ctx context.Context, p Principal) error
}
