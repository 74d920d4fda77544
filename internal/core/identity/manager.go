package identity

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	go_oidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"

	"github.com/duynhne/account-dashboard/config"
	"github.com/duynhne/account-dashboard/internal/core/domain"
	"github.com/duynhne/account-dashboard/middleware"
)

var _ domain.TokenManager = (*Manager)(nil)

// Callback failure causes. All of them wrap domain.ErrCallback.
var (
	ErrNoTransaction    = fmt.Errorf("%w: no pending login", domain.ErrCallback)
	ErrStateMismatch    = fmt.Errorf("%w: state mismatch", domain.ErrCallback)
	ErrNonceMismatch    = fmt.Errorf("%w: nonce mismatch", domain.ErrCallback)
	ErrMissingIDToken   = fmt.Errorf("%w: no id_token in token response", domain.ErrCallback)
	ErrProviderRejected = fmt.Errorf("%w: provider returned an error", domain.ErrCallback)
)

type profileClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Manager is the OIDC TokenManager. It is safe for concurrent use; all
// per-browser state travels through the domain.Browser argument.
type Manager struct {
	oauth         *oauth2.Config
	verifier      *go_oidc.IDTokenVerifier
	endSessionURL string
	postLogoutURL string
	clientID      string
	sessions      domain.SessionRepository
	principals    domain.PrincipalRepository
	cookies       *cookieJar
	now           func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrincipals enables the best-effort login log.
func WithPrincipals(repo domain.PrincipalRepository) Option {
	return func(m *Manager) { m.principals = repo }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager for the relying party described by cfg.
func NewManager(cfg config.Config, p *Provider, sessions domain.SessionRepository, opts ...Option) (*Manager, error) {
	if p == nil || p.Verifier == nil {
		return nil, errors.New("identity: provider with verifier is required")
	}
	if sessions == nil {
		return nil, errors.New("identity: session repository is required")
	}
	jar, err := newCookieJar(
		cfg.Session.CookieSecret,
		cfg.Session.CookieName,
		cfg.Session.CookieDomain,
		cfg.Session.CookieSecure,
		cfg.GetTransactionTTLDuration(),
	)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURI,
			Scopes:       cfg.OIDC.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  p.AuthURL,
				TokenURL: p.TokenURL,
			},
		},
		verifier:      p.Verifier,
		endSessionURL: p.EndSessionURL,
		postLogoutURL: cfg.OIDC.PostLogoutRedirectURI,
		clientID:      cfg.OIDC.ClientID,
		sessions:      sessions,
		cookies:       jar,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ConsumeCallback validates the callback against the pending transaction,
// redeems the authorization code (or accepts a returned id_token), and
// persists a new session record.
func (m *Manager) ConsumeCallback(ctx context.Context, b domain.Browser, currentURL *url.URL) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "identity.consume_callback", trace.WithAttributes(
		attribute.String("layer", "core"),
	))
	defer span.End()

	nav := domain.NewNavigationContext(currentURL)
	params := nav.Query()
	if !params.Has(domain.CodeParam) {
		params = nav.Fragment()
	}

	// The transaction is single-use whatever the outcome.
	txn, txnErr := m.loadTransaction(b)
	b.SetCookie(m.cookies.expire(m.cookies.txnName))

	if e := params.Get("error"); e != "" {
		err := fmt.Errorf("%w: %s %s", ErrProviderRejected, e, params.Get("error_description"))
		span.RecordError(err)
		return nil, err
	}
	if txnErr != nil {
		span.RecordError(txnErr)
		return nil, txnErr
	}
	if subtle.ConstantTimeCompare([]byte(params.Get("state")), []byte(txn.State)) != 1 {
		span.RecordError(ErrStateMismatch)
		return nil, ErrStateMismatch
	}

	var (
		rawIDToken string
		token      *oauth2.Token
	)
	if params.Has(domain.CodeParam) {
		var err error
		token, err = m.oauth.Exchange(ctx, params.Get(domain.CodeParam), oauth2.VerifierOption(txn.Verifier))
		if err != nil {
			err = fmt.Errorf("%w: token exchange failed: %v", domain.ErrCallback, err)
			span.RecordError(err)
			return nil, err
		}
		raw, ok := token.Extra(domain.IDTokenParam).(string)
		if !ok || raw == "" {
			span.RecordError(ErrMissingIDToken)
			return nil, ErrMissingIDToken
		}
		rawIDToken = raw
	} else {
		rawIDToken = params.Get(domain.IDTokenParam)
	}

	idToken, err := m.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		err = fmt.Errorf("%w: invalid id_token: %v", domain.ErrCallback, err)
		span.RecordError(err)
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(txn.Nonce)) != 1 {
		span.RecordError(ErrNonceMismatch)
		return nil, ErrNonceMismatch
	}
	var claims profileClaims
	if err := idToken.Claims(&claims); err != nil {
		err = fmt.Errorf("%w: unreadable claims: %v", domain.ErrCallback, err)
		span.RecordError(err)
		return nil, err
	}

	now := m.now()
	rec := domain.SessionRecord{
		ID:        uuid.NewString(),
		Subject:   idToken.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		IDToken:   rawIDToken,
		CreatedAt: now,
		ExpiresAt: sessionExpiry(token, idToken),
	}
	if token != nil {
		rec.AccessToken = token.AccessToken
		rec.RefreshToken = token.RefreshToken
		rec.TokenExpiry = token.Expiry
	}

	if err := m.sessions.Create(ctx, rec); err != nil {
		err = fmt.Errorf("%w: persist session: %v", domain.ErrCallback, err)
		span.RecordError(err)
		return nil, err
	}
	cookie, err := m.cookies.encodeSession(rec.ID, rec.ExpiresAt)
	if err != nil {
		err = fmt.Errorf("%w: encode session cookie: %v", domain.ErrCallback, err)
		span.RecordError(err)
		return nil, err
	}
	b.SetCookie(cookie)

	session := rec.Session()
	m.recordLogin(ctx, session, now)

	span.SetAttributes(
		attribute.String("session.subject", session.Subject),
		attribute.Bool("callback.code_flow", token != nil),
	)
	return &session, nil
}

// GetCurrentSession loads the session referenced by the browser's session
// cookie. It does not judge expiry; that is the caller's decision.
func (m *Manager) GetCurrentSession(ctx context.Context, b domain.Browser) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "identity.get_current_session", trace.WithAttributes(
		attribute.String("layer", "core"),
	))
	defer span.End()

	rec, err := m.currentRecord(ctx, b)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if rec == nil {
		span.SetAttributes(attribute.Bool("session.present", false))
		return nil, nil
	}

	span.SetAttributes(attribute.Bool("session.present", true))
	session := rec.Session()
	return &session, nil
}

// BeginLoginRedirect stores a fresh transaction cookie and sends the browser
// to the authorization endpoint.
func (m *Manager) BeginLoginRedirect(ctx context.Context, b domain.Browser, extraParams map[string]string) error {
	_, span := middleware.StartSpan(ctx, "identity.begin_login_redirect", trace.WithAttributes(
		attribute.String("layer", "core"),
	))
	defer span.End()

	txn := transaction{
		State:    randomToken(),
		Nonce:    randomToken(),
		Verifier: oauth2.GenerateVerifier(),
	}
	cookie, err := m.cookies.encodeTransaction(txn, m.now())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encode login transaction: %w", err)
	}
	b.SetCookie(cookie)

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(txn.Verifier),
		oauth2.SetAuthURLParam("nonce", txn.Nonce),
	}
	for k, v := range extraParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	b.Navigate(m.oauth.AuthCodeURL(txn.State, opts...))
	return nil
}

// BeginLogoutRedirect deletes the session record and cookie, then sends the
// browser to the provider's end-session endpoint.
func (m *Manager) BeginLogoutRedirect(ctx context.Context, b domain.Browser) error {
	ctx, span := middleware.StartSpan(ctx, "identity.begin_logout_redirect", trace.WithAttributes(
		attribute.String("layer", "core"),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	var idTokenHint string
	rec, err := m.currentRecord(ctx, b)
	if err != nil {
		// Logout proceeds regardless; the cookie is cleared below.
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Could not load session for logout")
	}
	if rec != nil {
		idTokenHint = rec.IDToken
		if err := m.sessions.Delete(ctx, rec.ID); err != nil {
			span.RecordError(err)
			logger.Warn().Err(err).Str("session_id", rec.ID).Msg("Could not delete session record")
		}
	}
	b.SetCookie(m.cookies.expire(m.cookies.sessionName))

	b.Navigate(m.logoutURL(idTokenHint))
	return nil
}

func (m *Manager) logoutURL(idTokenHint string) string {
	if m.endSessionURL == "" {
		return m.postLogoutURL
	}
	u, err := url.Parse(m.endSessionURL)
	if err != nil {
		return m.postLogoutURL
	}
	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	q.Set("client_id", m.clientID)
	q.Set("post_logout_redirect_uri", m.postLogoutURL)
	u.RawQuery = q.Encode()
	return u.String()
}

// currentRecord returns (nil, nil) when the browser has no session cookie or
// the record is gone. Undecodable cookies and repository failures wrap
// domain.ErrStorage.
func (m *Manager) currentRecord(ctx context.Context, b domain.Browser) (*domain.SessionRecord, error) {
	value, err := b.Cookie(m.cookies.sessionName)
	if errors.Is(err, http.ErrNoCookie) || value == "" {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read cookie: %v", domain.ErrStorage, err)
	}
	id, err := m.cookies.decodeSession(value)
	if err != nil {
		return nil, fmt.Errorf("%w: decode cookie: %v", domain.ErrStorage, err)
	}
	rec, err := m.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load session %q: %v", domain.ErrStorage, id, err)
	}
	return rec, nil
}

func (m *Manager) loadTransaction(b domain.Browser) (transaction, error) {
	value, err := b.Cookie(m.cookies.txnName)
	if err != nil || value == "" {
		return transaction{}, ErrNoTransaction
	}
	txn, err := m.cookies.decodeTransaction(value)
	if err != nil {
		return transaction{}, fmt.Errorf("%w: %v", ErrNoTransaction, err)
	}
	return txn, nil
}

func (m *Manager) recordLogin(ctx context.Context, s domain.Session, now time.Time) {
	if m.principals == nil {
		return
	}
	err := m.principals.RecordLogin(ctx, domain.Principal{
		Subject:     s.Subject,
		Email:       s.Email,
		DisplayName: s.DisplayName(),
		LoginAt:     now,
	})
	if err != nil {
		logger := pkgzerolog.FromContext(ctx)
		logger.Warn().Err(err).Str("subject", s.Subject).Msg("Could not record login")
	}
}

// sessionExpiry prefers the access token expiry over the ID token expiry.
func sessionExpiry(token *oauth2.Token, idToken *go_oidc.IDToken) time.Time {
	if token != nil && !token.Expiry.IsZero() {
		return token.Expiry
	}
	return idToken.Expiry
}

func randomToken() string {
	return base64.RawURLEncoding.EncodeToString(securecookie.GenerateRandomKey(32))
}
