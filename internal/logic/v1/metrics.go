package v1

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/duynhne/account-dashboard/internal/core/domain"
)

var sessionResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dashboard_session_resolutions_total",
	Help: "Page-load session resolutions by path, terminal state and reason.",
}, []string{"path", "state", "reason"})

// reasonLabel maps an unresolved reason onto a bounded label value.
func reasonLabel(reason error) string {
	switch {
	case reason == nil:
		return "none"
	case errors.Is(reason, domain.ErrCallback):
		return "callback_error"
	case errors.Is(reason, domain.ErrStorage):
		return "storage_error"
	case errors.Is(reason, ErrSessionExpired):
		return "session_expired"
	case errors.Is(reason, ErrSessionNotFound):
		return "no_session"
	default:
		return "other"
	}
}
