package v1

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/account-dashboard/internal/core/domain"
)

// ginBrowser presents one gin request/response pair as the visiting
// browser. Navigate answers with a redirect; ReplaceState is recorded and
// rendered into the page by pageSync.
type ginBrowser struct {
	c            *gin.Context
	nav          domain.NavigationContext
	replaceState string
	navigated    string
}

var _ domain.Browser = (*ginBrowser)(nil)

func newGinBrowser(c *gin.Context) *ginBrowser {
	return &ginBrowser{c: c, nav: domain.NewNavigationContext(requestLocation(c))}
}

// requestLocation reconstructs the address bar URL. Parameters of a
// form_post response arrive in the body: a body carrying a code stands in
// for query mode, anything else for the fragment the server never sees.
func requestLocation(c *gin.Context) *url.URL {
	r := c.Request
	scheme := "http"
	if r.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	u := &url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil && len(r.PostForm) > 0 {
			if r.PostForm.Has(domain.CodeParam) {
				q := r.URL.Query()
				for k, vs := range r.PostForm {
					q[k] = append([]string(nil), vs...)
				}
				u.RawQuery = q.Encode()
			} else {
				u.Fragment = r.PostForm.Encode()
			}
		}
	}
	return u
}

func (b *ginBrowser) Location() domain.NavigationContext {
	return b.nav
}

func (b *ginBrowser) Cookie(name string) (string, error) {
	ck, err := b.c.Request.Cookie(name)
	if err != nil {
		return "", err
	}
	return ck.Value, nil
}

func (b *ginBrowser) SetCookie(ck *http.Cookie) {
	http.SetCookie(b.c.Writer, ck)
}

func (b *ginBrowser) Navigate(target string) {
	b.navigated = target
	b.c.Header("Cache-Control", "no-store")
	// 303 turns a form_post callback into a GET on the provider.
	b.c.Redirect(http.StatusSeeOther, target)
	b.c.Abort()
}

func (b *ginBrowser) ReplaceState(target string) {
	b.replaceState = target
}
