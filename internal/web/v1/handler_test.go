package v1

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/account-dashboard/config"
	"github.com/duynhne/account-dashboard/internal/core/domain"
	logicv1 "github.com/duynhne/account-dashboard/internal/logic/v1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const idpAuthorize = "https://idp.example.com/authorize"

type stubTokens struct {
	callbackSession *domain.Session
	callbackErr     error
	currentSession  *domain.Session
	redirectErr     error

	consumed    []string
	loginHints  []map[string]string
	logoutCalls int
}

func (s *stubTokens) ConsumeCallback(_ context.Context, b domain.Browser, u *url.URL) (*domain.Session, error) {
	s.consumed = append(s.consumed, u.String())
	if s.callbackErr != nil {
		return nil, s.callbackErr
	}
	b.SetCookie(&http.Cookie{Name: "_dashboard_session", Value: "sid"})
	return s.callbackSession, nil
}

func (s *stubTokens) GetCurrentSession(context.Context, domain.Browser) (*domain.Session, error) {
	return s.currentSession, nil
}

func (s *stubTokens) BeginLoginRedirect(_ context.Context, b domain.Browser, extra map[string]string) error {
	s.loginHints = append(s.loginHints, extra)
	if s.redirectErr != nil {
		return s.redirectErr
	}
	q := url.Values{}
	for k, v := range extra {
		q.Set(k, v)
	}
	b.Navigate(idpAuthorize + "?" + q.Encode())
	return nil
}

func (s *stubTokens) BeginLogoutRedirect(_ context.Context, b domain.Browser) error {
	s.logoutCalls++
	b.Navigate("https://idp.example.com/end-session")
	return nil
}

func newTestRouter(tokens *stubTokens) *gin.Engine {
	oidc := config.OIDCConfig{}.WithLoginHints(map[string]string{"login_hint": "default-authentication-flow"})
	resolver := logicv1.NewSessionResolver(tokens, oidc)

	r := gin.New()
	r.SetHTMLTemplate(Templates())
	NewHandler(resolver, tokens).RegisterRoutes(r.Group("/"))
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func alex() *domain.Session {
	return &domain.Session{
		Subject:   "sub-1",
		Name:      "Alex Johnson",
		Email:     "alex@x.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestDashboardCallbackRendersAndCleansHistory(t *testing.T) {
	tokens := &stubTokens{callbackSession: alex()}
	r := newTestRouter(tokens)

	req := httptest.NewRequest(http.MethodGet, "https://myaccount.example.com/?code=abc123&state=s", nil)
	w := serve(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<span id="user-name-display-welcome">Alex Johnson</span>`)
	assert.Contains(t, body, `<p id="user-email-display-dropdown">alex@x.com</p>`)
	assert.Contains(t, body, `<span id="header-profile-icon" class="avatar">AJ</span>`)
	assert.Contains(t, body, "window.history.replaceState")
	assert.Regexp(t, `replaceState\(\{\}, document\.title, "https:(\\?/){2}myaccount\.example\.com\\?/"\)`, body)
	assert.NotContains(t, body, "abc123")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "_dashboard_session=sid")
	assert.Len(t, tokens.consumed, 1)
}

func TestDashboardExistingSessionRendersWithoutHistoryRewrite(t *testing.T) {
	s := alex()
	s.Email = ""
	r := newTestRouter(&stubTokens{currentSession: s})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "replaceState")
	assert.NotContains(t, body, "user-email-display-dropdown")
	assert.Contains(t, body, "Alex Johnson")
}

func TestDashboardNoSessionRedirects(t *testing.T) {
	tokens := &stubTokens{}
	r := newTestRouter(tokens)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)
	assert.Equal(t, "default-authentication-flow", loc.Query().Get("login_hint"))
	assert.NotContains(t, w.Body.String(), "app-container")
	assert.Len(t, tokens.loginHints, 1)
}

func TestDashboardCallbackFailureRedirects(t *testing.T) {
	tokens := &stubTokens{callbackErr: domain.ErrCallback}
	r := newTestRouter(tokens)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/?code=used", nil))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), idpAuthorize))
	assert.Len(t, tokens.consumed, 1)
	assert.Len(t, tokens.loginHints, 1)
}

func TestDashboardFormPostCallback(t *testing.T) {
	tokens := &stubTokens{callbackSession: alex()}
	r := newTestRouter(tokens)

	form := url.Values{"id_token": {"eyJ"}, "state": {"s"}}
	req := httptest.NewRequest(http.MethodPost, "https://myaccount.example.com/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, tokens.consumed, 1)
	consumed, err := url.Parse(tokens.consumed[0])
	require.NoError(t, err)
	frag, err := url.ParseQuery(consumed.Fragment)
	require.NoError(t, err)
	assert.Equal(t, "eyJ", frag.Get("id_token"))
	assert.Contains(t, w.Body.String(), "window.history.replaceState")
}

func TestDashboardFormPostCodeCallback(t *testing.T) {
	tokens := &stubTokens{callbackSession: alex()}
	r := newTestRouter(tokens)

	form := url.Values{"code": {"abc123"}, "state": {"s"}}
	req := httptest.NewRequest(http.MethodPost, "https://myaccount.example.com/?tab=home", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, tokens.loginHints)
	require.Len(t, tokens.consumed, 1)
	consumed, err := url.Parse(tokens.consumed[0])
	require.NoError(t, err)
	assert.Equal(t, "abc123", consumed.Query().Get("code"))
	assert.Equal(t, "s", consumed.Query().Get("state"))
	assert.Equal(t, "home", consumed.Query().Get("tab"))
	assert.Empty(t, consumed.Fragment)
	assert.Contains(t, w.Body.String(), "window.history.replaceState")
}

func TestDashboardRedirectFailureDoesNotRender(t *testing.T) {
	r := newTestRouter(&stubTokens{redirectErr: errors.New("no provider")})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "app-container")
}

func TestLogout(t *testing.T) {
	tokens := &stubTokens{}
	r := newTestRouter(tokens)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://idp.example.com/end-session", w.Header().Get("Location"))
	assert.Equal(t, 1, tokens.logoutCalls)
	assert.Empty(t, tokens.loginHints)
}

func TestLogoutRejectsGet(t *testing.T) {
	tokens := &stubTokens{}
	r := newTestRouter(tokens)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/logout", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, tokens.logoutCalls)
}
