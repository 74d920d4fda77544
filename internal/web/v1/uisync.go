package v1

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/account-dashboard/internal/core/domain"
)

const dashboardTemplate = "dashboard.html"

// initialsPlaceholder is shown when there is no name to take initials from.
const initialsPlaceholder = "?"

// dashboardView is everything the dashboard template paints.
type dashboardView struct {
	DisplayName string
	Email       string
	Initials    string
	// ReplaceURL, when set, is written over the current history entry
	// before anything else runs in the page.
	ReplaceURL string
}

// Initials returns up to two upper-cased initials for name: the first two
// characters of a single word, or the first character of each of the first
// two words.
func Initials(name string) string {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return initialsPlaceholder
	case 1:
		word := parts[0]
		if utf8.RuneCountInString(word) > 2 {
			word = string([]rune(word)[:2])
		}
		return strings.ToUpper(word)
	default:
		first, _ := utf8.DecodeRuneInString(parts[0])
		second, _ := utf8.DecodeRuneInString(parts[1])
		return strings.ToUpper(string([]rune{first, second}))
	}
}

func newDashboardView(s domain.Session, replaceURL string) dashboardView {
	name := s.DisplayName()
	return dashboardView{
		DisplayName: name,
		Email:       s.Email,
		Initials:    Initials(name),
		ReplaceURL:  replaceURL,
	}
}

// pageSync renders the protected dashboard for the resolved session.
type pageSync struct {
	c       *gin.Context
	browser *ginBrowser
}

func (p *pageSync) Sync(_ context.Context, s domain.Session) {
	p.c.Header("Cache-Control", "no-store")
	p.c.HTML(http.StatusOK, dashboardTemplate, newDashboardView(s, p.browser.replaceState))
}
