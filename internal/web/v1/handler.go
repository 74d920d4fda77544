package v1

import (
	"context"
	"net/http"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/account-dashboard/internal/core/domain"
	logicv1 "github.com/duynhne/account-dashboard/internal/logic/v1"
	"github.com/duynhne/account-dashboard/middleware"
)

// SessionResolver is the page-load decision procedure the handler drives.
type SessionResolver interface {
	Resolve(ctx context.Context, b domain.Browser, ui logicv1.UISync) (logicv1.Outcome, error)
}

// Handler groups HTTP handlers for the dashboard pages.
// Dependencies are injected via the constructor; no global state.
type Handler struct {
	resolver SessionResolver
	tokens   domain.TokenManager
}

// NewHandler creates a new Handler.
func NewHandler(resolver SessionResolver, tokens domain.TokenManager) *Handler {
	return &Handler{resolver: resolver, tokens: tokens}
}

// RegisterRoutes registers the dashboard routes on the given router group.
// POST / accepts response_mode=form_post callbacks. Logout is POST only so
// that cross-site links cannot sign the user out.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/", h.Dashboard)
	rg.POST("/", h.Dashboard)
	rg.POST("/logout", h.Logout)
}

// Dashboard resolves the session for this page load and either renders the
// protected dashboard or redirects to the identity provider.
func (h *Handler) Dashboard(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	browser := newGinBrowser(c)
	ui := &pageSync{c: c, browser: browser}

	out, err := h.resolver.Resolve(ctx, browser, ui)
	span.SetAttributes(
		attribute.String("session.path", string(out.Path)),
		attribute.String("session.state", string(out.State)),
	)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Could not start login redirect")
		c.Header("Cache-Control", "no-store")
		c.String(http.StatusBadGateway, "Sign-in is temporarily unavailable. Please try again later.")
		return
	}

	if s, ok := out.Resolution.Session(); ok {
		logger.Info().Str("subject", s.Subject).Str("path", string(out.Path)).Msg("Session resolved")
	}
}

// Logout hands the browser to the token manager's logout redirect and
// does nothing else.
func (h *Handler) Logout(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	if err := h.tokens.BeginLogoutRedirect(ctx, newGinBrowser(c)); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Logout redirect failed")
		c.String(http.StatusInternalServerError, "Sign-out failed. Please try again.")
		return
	}
	logger.Info().Msg("Logout redirect issued")
}
