package domain

import "net/http"

// Browser is the visiting browser as seen from a single page load: its
// current location, its persisted cookies, and its navigation history.
type Browser interface {
	// Location returns the navigation context of the current load.
	Location() NavigationContext

	// Cookie returns the named cookie value or http.ErrNoCookie.
	Cookie(name string) (string, error)

	// SetCookie persists a cookie in the browser.
	SetCookie(c *http.Cookie)

	// Navigate sends the browser to target, leaving the page.
	Navigate(target string)

	// ReplaceState rewrites the current history entry to target without
	// creating a new one.
	ReplaceState(target string)
}
