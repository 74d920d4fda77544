package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/account-dashboard/config"
	"github.com/duynhne/account-dashboard/internal/core/domain"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeBrowser struct {
	location  *url.URL
	replaced  []string
	navigated []string
}

func newFakeBrowser(t *testing.T, raw string) *fakeBrowser {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return &fakeBrowser{location: u}
}

func (b *fakeBrowser) Location() domain.NavigationContext { return domain.NewNavigationContext(b.location) }
func (b *fakeBrowser) Cookie(string) (string, error)      { return "", http.ErrNoCookie }
func (b *fakeBrowser) SetCookie(*http.Cookie)             {}
func (b *fakeBrowser) Navigate(target string)             { b.navigated = append(b.navigated, target) }
func (b *fakeBrowser) ReplaceState(target string)         { b.replaced = append(b.replaced, target) }

type fakeTokens struct {
	callbackSession *domain.Session
	callbackErr     error
	currentSession  *domain.Session
	currentErr      error
	redirectErr     error

	consumed     []string
	currentCalls int
	loginCalls   []map[string]string
	logoutCalls  int
}

func (f *fakeTokens) ConsumeCallback(_ context.Context, _ domain.Browser, u *url.URL) (*domain.Session, error) {
	f.consumed = append(f.consumed, u.String())
	return f.callbackSession, f.callbackErr
}

func (f *fakeTokens) GetCurrentSession(context.Context, domain.Browser) (*domain.Session, error) {
	f.currentCalls++
	return f.currentSession, f.currentErr
}

func (f *fakeTokens) BeginLoginRedirect(_ context.Context, b domain.Browser, extra map[string]string) error {
	f.loginCalls = append(f.loginCalls, extra)
	if f.redirectErr != nil {
		return f.redirectErr
	}
	b.Navigate("https://idp.example.com/authorize")
	return nil
}

func (f *fakeTokens) BeginLogoutRedirect(context.Context, domain.Browser) error {
	f.logoutCalls++
	return nil
}

type fakeUI struct {
	synced []domain.Session
}

func (u *fakeUI) Sync(_ context.Context, s domain.Session) {
	u.synced = append(u.synced, s)
}

func newTestResolver(tokens domain.TokenManager) *SessionResolver {
	oidc := config.OIDCConfig{}.WithLoginHints(map[string]string{"login_hint": "default-authentication-flow"})
	return NewSessionResolver(tokens, oidc, WithClock(func() time.Time { return testNow }))
}

func validSession() *domain.Session {
	return &domain.Session{
		Subject:   "sub-1",
		Name:      "Alex Johnson",
		Email:     "alex@x.com",
		ExpiresAt: testNow.Add(time.Hour),
	}
}

func TestResolveCallbackSuccess(t *testing.T) {
	tokens := &fakeTokens{callbackSession: validSession()}
	b := newFakeBrowser(t, "https://myaccount.example.com/?code=abc123")
	ui := &fakeUI{}

	out, err := newTestResolver(tokens).Resolve(context.Background(), b, ui)
	require.NoError(t, err)

	assert.Equal(t, StateCallbackPending, out.Path)
	assert.Equal(t, StateRendered, out.State)
	assert.Equal(t, []string{"https://myaccount.example.com/?code=abc123"}, tokens.consumed)
	assert.Zero(t, tokens.currentCalls, "callback path must not read the stored session")
	assert.Empty(t, tokens.loginCalls)
	assert.Equal(t, []string{"https://myaccount.example.com/"}, b.replaced)
	assert.Empty(t, b.navigated)

	require.Len(t, ui.synced, 1)
	assert.Equal(t, "Alex Johnson", ui.synced[0].DisplayName())
	assert.NoError(t, out.Resolution.Reason())
}

func TestResolveFragmentCallback(t *testing.T) {
	tokens := &fakeTokens{callbackSession: validSession()}
	b := newFakeBrowser(t, "https://myaccount.example.com/home?state=s#id_token=eyJ&state=s")

	out, err := newTestResolver(tokens).Resolve(context.Background(), b, &fakeUI{})
	require.NoError(t, err)

	assert.Equal(t, StateCallbackPending, out.Path)
	assert.Equal(t, StateRendered, out.State)
	assert.Zero(t, tokens.currentCalls)
	assert.Equal(t, []string{"https://myaccount.example.com/home"}, b.replaced)
}

func TestResolveCallbackFailureRedirectsOnce(t *testing.T) {
	tokens := &fakeTokens{callbackErr: fmt.Errorf("%w: state mismatch", domain.ErrCallback)}
	b := newFakeBrowser(t, "https://myaccount.example.com/?code=abc123&state=x")
	ui := &fakeUI{}

	out, err := newTestResolver(tokens).Resolve(context.Background(), b, ui)
	require.NoError(t, err)

	assert.Equal(t, StateRedirectIssued, out.State)
	assert.Len(t, tokens.consumed, 1, "no second callback attempt")
	assert.Zero(t, tokens.currentCalls)
	require.Len(t, tokens.loginCalls, 1)
	assert.Equal(t, map[string]string{"login_hint": "default-authentication-flow"}, tokens.loginCalls[0])
	assert.Empty(t, ui.synced)
	assert.Empty(t, b.replaced)
	assert.ErrorIs(t, out.Resolution.Reason(), domain.ErrCallback)
}

func TestResolveCallbackExpiredSession(t *testing.T) {
	expired := validSession()
	expired.ExpiresAt = testNow.Add(-time.Minute)
	tokens := &fakeTokens{callbackSession: expired}
	ui := &fakeUI{}

	out, err := newTestResolver(tokens).Resolve(context.Background(), newFakeBrowser(t, "https://myaccount.example.com/?code=abc"), ui)
	require.NoError(t, err)

	assert.Equal(t, StateRedirectIssued, out.State)
	assert.ErrorIs(t, out.Resolution.Reason(), ErrSessionExpired)
	assert.Empty(t, ui.synced)
	assert.Len(t, tokens.loginCalls, 1)
}

func TestResolveSessionCheck(t *testing.T) {
	expired := validSession()
	expired.ExpiresAt = testNow.Add(-time.Second)
	atNow := validSession()
	atNow.ExpiresAt = testNow
	noExpiry := validSession()
	noExpiry.ExpiresAt = time.Time{}

	tests := []struct {
		name       string
		session    *domain.Session
		err        error
		wantState  State
		wantReason error
	}{
		{name: "valid session", session: validSession(), wantState: StateRendered},
		{name: "no session", wantState: StateRedirectIssued, wantReason: ErrSessionNotFound},
		{name: "expired", session: expired, wantState: StateRedirectIssued, wantReason: ErrSessionExpired},
		{name: "expires exactly now", session: atNow, wantState: StateRedirectIssued, wantReason: ErrSessionExpired},
		{name: "absent expiry", session: noExpiry, wantState: StateRedirectIssued, wantReason: ErrSessionExpired},
		{
			name:       "storage error",
			err:        fmt.Errorf("%w: corrupt record", domain.ErrStorage),
			wantState:  StateRedirectIssued,
			wantReason: domain.ErrStorage,
		},
		{
			name:       "storage error with a session",
			session:    validSession(),
			err:        fmt.Errorf("%w: read failed", domain.ErrStorage),
			wantState:  StateRedirectIssued,
			wantReason: domain.ErrStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &fakeTokens{currentSession: tt.session, currentErr: tt.err}
			b := newFakeBrowser(t, "https://myaccount.example.com/?tab=security")
			ui := &fakeUI{}

			out, err := newTestResolver(tokens).Resolve(context.Background(), b, ui)
			require.NoError(t, err)

			assert.Equal(t, StateSessionCheck, out.Path)
			assert.Equal(t, tt.wantState, out.State)
			assert.Empty(t, tokens.consumed, "session check must not consume a callback")
			assert.Equal(t, 1, tokens.currentCalls)
			assert.Empty(t, b.replaced)

			if tt.wantState == StateRendered {
				assert.Len(t, ui.synced, 1)
				assert.Empty(t, tokens.loginCalls)
				return
			}
			assert.Empty(t, ui.synced)
			assert.Len(t, tokens.loginCalls, 1)
			assert.Len(t, b.navigated, 1)
			assert.ErrorIs(t, out.Resolution.Reason(), tt.wantReason)
		})
	}
}

func TestResolveNoSessionForwardsHints(t *testing.T) {
	tokens := &fakeTokens{}

	out, err := newTestResolver(tokens).Resolve(context.Background(), newFakeBrowser(t, "https://myaccount.example.com/"), &fakeUI{})
	require.NoError(t, err)

	assert.Equal(t, StateRedirectIssued, out.State)
	require.Len(t, tokens.loginCalls, 1)
	assert.Equal(t, map[string]string{"login_hint": "default-authentication-flow"}, tokens.loginCalls[0])

	// The forwarded map is a copy; mutating it must not leak into later loads.
	tokens.loginCalls[0]["login_hint"] = "tampered"
	_, err = newTestResolver(tokens).Resolve(context.Background(), newFakeBrowser(t, "https://myaccount.example.com/"), &fakeUI{})
	require.NoError(t, err)
	assert.Equal(t, "default-authentication-flow", tokens.loginCalls[1]["login_hint"])
}

func TestResolveIsIdempotentForValidSession(t *testing.T) {
	tokens := &fakeTokens{currentSession: validSession()}
	resolver := newTestResolver(tokens)
	ui := &fakeUI{}

	for i := 0; i < 2; i++ {
		out, err := resolver.Resolve(context.Background(), newFakeBrowser(t, "https://myaccount.example.com/"), ui)
		require.NoError(t, err)
		assert.Equal(t, StateRendered, out.State)
	}
	assert.Len(t, ui.synced, 2)
	assert.Empty(t, tokens.loginCalls)
}

func TestResolveRedirectFailure(t *testing.T) {
	boom := errors.New("authorization endpoint unknown")
	tokens := &fakeTokens{redirectErr: boom}
	ui := &fakeUI{}

	out, err := newTestResolver(tokens).Resolve(context.Background(), newFakeBrowser(t, "https://myaccount.example.com/"), ui)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateRedirectIssued, out.State)
	assert.Len(t, tokens.loginCalls, 1)
	assert.Empty(t, ui.synced)
}

func TestResolveNeverCallsLogout(t *testing.T) {
	for _, raw := range []string{"https://myaccount.example.com/", "https://myaccount.example.com/?code=x"} {
		tokens := &fakeTokens{callbackErr: domain.ErrCallback}
		_, err := newTestResolver(tokens).Resolve(context.Background(), newFakeBrowser(t, raw), &fakeUI{})
		require.NoError(t, err)
		assert.Zero(t, tokens.logoutCalls)
	}
}

func TestReasonLabel(t *testing.T) {
	assert.Equal(t, "none", reasonLabel(nil))
	assert.Equal(t, "callback_error", reasonLabel(fmt.Errorf("x: %w", domain.ErrCallback)))
	assert.Equal(t, "storage_error", reasonLabel(fmt.Errorf("x: %w", domain.ErrStorage)))
	assert.Equal(t, "session_expired", reasonLabel(fmt.Errorf("x: %w", ErrSessionExpired)))
	assert.Equal(t, "no_session", reasonLabel(fmt.Errorf("x: %w", ErrSessionNotFound)))
	assert.Equal(t, "other", reasonLabel(errors.New("x")))
}
