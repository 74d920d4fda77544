package domain

import "net/url"

// Parameter names whose presence marks a navigation as an authorization
// callback.
const (
	CodeParam    = "code"
	IDTokenParam = "id_token"
)

// NavigationContext is the current page location, captured once per load.
// Accessors return copies; the context itself is never mutated.
type NavigationContext struct {
	location url.URL
	query    url.Values
	fragment url.Values
}

// NewNavigationContext captures u. The fragment is parsed as a
// form-encoded parameter list, the way implicit and hybrid flows return
// tokens; a fragment that is not parameter-shaped yields no parameters.
func NewNavigationContext(u *url.URL) NavigationContext {
	loc := *u
	if u.User != nil {
		user := *u.User
		loc.User = &user
	}
	query, _ := url.ParseQuery(u.RawQuery)
	fragment, _ := url.ParseQuery(u.EscapedFragment())
	return NavigationContext{location: loc, query: query, fragment: fragment}
}

// IsCallback reports whether the query carries an authorization code or the
// fragment carries an identity token. Either one is sufficient.
func (n NavigationContext) IsCallback() bool {
	return n.query.Has(CodeParam) || n.fragment.Has(IDTokenParam)
}

// URL returns the full current location.
func (n NavigationContext) URL() *url.URL {
	u := n.location
	return &u
}

// CleanURL returns origin + path with the query and fragment dropped.
func (n NavigationContext) CleanURL() *url.URL {
	return &url.URL{
		Scheme:  n.location.Scheme,
		Host:    n.location.Host,
		Path:    n.location.Path,
		RawPath: n.location.RawPath,
	}
}

// Query returns a copy of the parsed query parameters.
func (n NavigationContext) Query() url.Values {
	return cloneValues(n.query)
}

// Fragment returns a copy of the parsed fragment parameters.
func (n NavigationContext) Fragment() url.Values {
	return cloneValues(n.fragment)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
