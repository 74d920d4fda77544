package v1

import (
	"context"
	"fmt"
	"time"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/account-dashboard/config"
	"github.com/duynhne/account-dashboard/internal/core/domain"
	"github.com/duynhne/account-dashboard/middleware"
)

// State is a step of the per-load resolution state machine. Every load
// starts unclassified; Outcome.Path records which branch it took.
type State string

const (
	StateCallbackPending State = "callback_pending"
	StateSessionCheck    State = "session_check"
	StateRendered        State = "rendered"
	StateRedirectIssued  State = "redirect_issued"
)

// UISync paints the identity fields and reveals protected content.
// It is called exactly once per load, and only with a valid session.
type UISync interface {
	Sync(ctx context.Context, s domain.Session)
}

// Resolution is either Resolved with a usable session or Unresolved with
// the reason no session could be used.
type Resolution struct {
	session *domain.Session
	reason  error
}

// Resolved returns a Resolution carrying s.
func Resolved(s domain.Session) Resolution {
	return Resolution{session: &s}
}

// Unresolved returns a Resolution carrying the reason.
func Unresolved(reason error) Resolution {
	return Resolution{reason: reason}
}

// Session returns the resolved session, if any.
func (r Resolution) Session() (domain.Session, bool) {
	if r.session == nil {
		return domain.Session{}, false
	}
	return *r.session, true
}

// Reason returns why the session is unresolved; nil when resolved.
func (r Resolution) Reason() error {
	return r.reason
}

// Outcome describes how a page load was resolved.
type Outcome struct {
	// Path is StateCallbackPending or StateSessionCheck.
	Path State
	// State is terminal: StateRendered or StateRedirectIssued.
	State      State
	Resolution Resolution
}

// SessionResolver decides, once per page load, between consuming an
// authorization callback, reusing a stored session, or redirecting to the
// identity provider. It never renders on an error path and never retries.
type SessionResolver struct {
	tokens     domain.TokenManager
	loginHints map[string]string
	now        func() time.Time
}

// ResolverOption configures a SessionResolver.
type ResolverOption func(*SessionResolver)

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *SessionResolver) { r.now = now }
}

// NewSessionResolver creates a SessionResolver forwarding the configured
// login hints on every redirect.
func NewSessionResolver(tokens domain.TokenManager, oidc config.OIDCConfig, opts ...ResolverOption) *SessionResolver {
	r := &SessionResolver{
		tokens:     tokens,
		loginHints: oidc.LoginHints(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the state machine for the load seen through b. On success ui
// is synced exactly once; otherwise exactly one login redirect is issued.
// The returned error is non-nil only when the login redirect itself could
// not be started.
func (r *SessionResolver) Resolve(ctx context.Context, b domain.Browser, ui UISync) (Outcome, error) {
	ctx, span := middleware.StartSpan(ctx, "session.resolve", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	nav := b.Location()
	out := Outcome{Path: StateSessionCheck}
	if nav.IsCallback() {
		out.Path = StateCallbackPending
		out.Resolution = r.consumeCallback(ctx, b, nav)
	} else {
		out.Resolution = r.checkSession(ctx, b)
	}
	span.SetAttributes(attribute.String("session.path", string(out.Path)))

	if s, ok := out.Resolution.Session(); ok {
		out.State = StateRendered
		span.SetAttributes(attribute.String("session.state", string(out.State)))
		sessionResolutions.WithLabelValues(string(out.Path), string(out.State), reasonLabel(nil)).Inc()

		ui.Sync(ctx, s)
		return out, nil
	}

	reason := out.Resolution.Reason()
	out.State = StateRedirectIssued
	span.SetAttributes(attribute.String("session.state", string(out.State)))
	span.RecordError(reason)
	sessionResolutions.WithLabelValues(string(out.Path), string(out.State), reasonLabel(reason)).Inc()

	logger.Info().
		Err(reason).
		Str("path", string(out.Path)).
		Msg("No usable session, redirecting to identity provider")

	if err := r.tokens.BeginLoginRedirect(ctx, b, r.hints()); err != nil {
		span.RecordError(err)
		return out, fmt.Errorf("begin login redirect: %w", err)
	}
	return out, nil
}

func (r *SessionResolver) consumeCallback(ctx context.Context, b domain.Browser, nav domain.NavigationContext) Resolution {
	s, err := r.tokens.ConsumeCallback(ctx, b, nav.URL())
	if err != nil {
		return Unresolved(fmt.Errorf("consume callback: %w", err))
	}
	if s == nil {
		return Unresolved(fmt.Errorf("consume callback: %w: no session returned", domain.ErrCallback))
	}

	// The artifacts are spent once consumed; keep them out of history.
	b.ReplaceState(nav.CleanURL().String())

	if !s.ValidAt(r.now()) {
		return Unresolved(fmt.Errorf("callback session expired at %v: %w", s.ExpiresAt, ErrSessionExpired))
	}
	return Resolved(*s)
}

func (r *SessionResolver) checkSession(ctx context.Context, b domain.Browser) Resolution {
	s, err := r.tokens.GetCurrentSession(ctx, b)
	if err != nil {
		return Unresolved(fmt.Errorf("get current session: %w", err))
	}
	if s == nil {
		return Unresolved(fmt.Errorf("get current session: %w", ErrSessionNotFound))
	}
	if !s.ValidAt(r.now()) {
		return Unresolved(fmt.Errorf("session expired at %v: %w", s.ExpiresAt, ErrSessionExpired))
	}
	return Resolved(*s)
}

func (r *SessionResolver) hints() map[string]string {
	out := make(map[string]string, len(r.loginHints))
	for k, v := range r.loginHints {
		out[k] = v
	}
	return out
}
