package domain

import (
	"context"
	"net/url"
)

// TokenManager owns the identity provider protocol: PKCE, token storage and
// expiry bookkeeping. Callers treat it as opaque.
type TokenManager interface {
	// ConsumeCallback exchanges the authorization artifacts found in
	// currentURL for a Session and persists it. Failures wrap ErrCallback.
	ConsumeCallback(ctx context.Context, b Browser, currentURL *url.URL) (*Session, error)

	// GetCurrentSession returns the persisted session, or (nil, nil) when
	// the browser holds none. Failures wrap ErrStorage.
	GetCurrentSession(ctx context.Context, b Browser) (*Session, error)

	// BeginLoginRedirect navigates the browser to the identity provider,
	// forwarding extraParams verbatim on the authorization request.
	BeginLoginRedirect(ctx context.Context, b Browser, extraParams map[string]string) error

	// BeginLogoutRedirect discards the persisted session and navigates the
	// browser to the identity provider's logout endpoint.
	BeginLogoutRedirect(ctx context.Context, b Browser) error
}
