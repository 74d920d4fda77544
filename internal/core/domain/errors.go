package domain

import "errors"

var (
	// ErrCallback covers every way an authorization callback can fail:
	// missing or mismatched state, provider-side rejection, failed code
	// exchange, invalid identity token.
	ErrCallback = errors.New("authorization callback failed")

	// ErrStorage indicates the persisted session could not be read.
	ErrStorage = errors.New("session storage unavailable")
)
