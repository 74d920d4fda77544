// Package identity implements the dashboard's TokenManager against an
// OpenID Connect provider: authorization code flow with PKCE (S256),
// state and nonce binding through a signed transaction cookie, and
// server-side session records referenced by a signed session cookie.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	go_oidc "github.com/coreos/go-oidc/v3/oidc"
)

// Provider holds the identity provider endpoints the Manager talks to.
type Provider struct {
	AuthURL  string
	TokenURL string
	// EndSessionURL is the RP-initiated logout endpoint; empty when the
	// provider does not advertise one.
	// https://openid.net/specs/openid-connect-rpinitiated-1_0.html
	EndSessionURL string

	Verifier *go_oidc.IDTokenVerifier
}

// httpTimeout bounds discovery and JWKS requests.
const httpTimeout = 15 * time.Second

// Discover fetches the provider's .well-known/openid-configuration from
// authority and builds a Provider with an ID token verifier for clientID.
// The verifier's key set keeps ctx for later JWKS fetches, so ctx must not
// be cancelled while the Provider is in use.
func Discover(ctx context.Context, authority, clientID string) (*Provider, error) {
	ctx = go_oidc.ClientContext(ctx, &http.Client{Timeout: httpTimeout})
	op, err := go_oidc.NewProvider(ctx, authority)
	if err != nil {
		return nil, fmt.Errorf("identity: could not discover %s: %w", authority, err)
	}

	// end_session_endpoint is not part of go-oidc's typed metadata.
	var extra struct {
		EndSessionURL string `json:"end_session_endpoint"`
	}
	if err := op.Claims(&extra); err != nil {
		return nil, fmt.Errorf("identity: could not read provider metadata: %w", err)
	}

	ep := op.Endpoint()
	return &Provider{
		AuthURL:       ep.AuthURL,
		TokenURL:      ep.TokenURL,
		EndSessionURL: extra.EndSessionURL,
		Verifier:      op.Verifier(&go_oidc.Config{ClientID: clientID}),
	}, nil
}
