// Package v1 provides the session resolution logic for API version 1.
//
// Error Handling:
// Every way a page load can end up without a usable session is represented
// by a sentinel error. Callback and storage failures come from the token
// manager and wrap domain.ErrCallback or domain.ErrStorage; absence and
// expiry are detected here and wrap the sentinels below.
//
// All of them are reasons, not outcomes: the resolver collapses every one
// into a single login redirect. Callers inspect them only for logging and
// metrics:
//
//	switch {
//	case errors.Is(reason, domain.ErrCallback):
//	    // bad, used or expired authorization artifact
//	case errors.Is(reason, logicv1.ErrSessionExpired):
//	    // stored session past its expiry
//	}
package v1

import "errors"

// Sentinel errors for session resolution.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned.
var (
	// ErrSessionNotFound indicates the browser holds no persisted session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session is readable but its expiry is
	// absent or not in the future.
	ErrSessionExpired = errors.New("session expired")
)
