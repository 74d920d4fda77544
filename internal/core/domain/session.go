package domain

import (
	"strings"
	"time"
)

// fallbackDisplayName is shown when the principal has neither a name nor an
// email claim.
const fallbackDisplayName = "User"

// Session is one authenticated principal for the lifetime of a page load.
// It is produced by the TokenManager and is read-only to everyone else.
type Session struct {
	// Subject is the opaque, stable principal identifier (the "sub" claim).
	Subject string
	// Name is the "name" profile claim, possibly empty.
	Name string
	// Email is the "email" claim, possibly empty.
	Email string
	// ExpiresAt is the instant after which the session is no longer valid.
	// The zero value means the expiry is unknown and the session is
	// treated as already expired.
	ExpiresAt time.Time
}

// DisplayName returns the profile name, else the local part of the email,
// else "User".
func (s Session) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(s.Email, "@"); local != "" {
		return local
	}
	return fallbackDisplayName
}

// ValidAt reports whether the session exists and expires strictly after now.
func (s *Session) ValidAt(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && s.ExpiresAt.After(now)
}
