package domain

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestNavigationContextIsCallback(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://myaccount.example.com/", false},
		{"https://myaccount.example.com/?code=abc123", true},
		{"https://myaccount.example.com/?code=", true},
		{"https://myaccount.example.com/?code=abc&state=xyz", true},
		{"https://myaccount.example.com/#id_token=eyJ", true},
		{"https://myaccount.example.com/?state=xyz#id_token=eyJ", true},
		{"https://myaccount.example.com/?error_code=1", false},
		{"https://myaccount.example.com/?id_token=eyJ", false},
		{"https://myaccount.example.com/#code=abc", false},
		{"https://myaccount.example.com/#section-2", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NewNavigationContext(mustParse(t, tt.raw)).IsCallback())
		})
	}
}

func TestNavigationContextCleanURL(t *testing.T) {
	nav := NewNavigationContext(mustParse(t, "https://myaccount.example.com/settings/?code=abc&state=s#id_token=x"))

	assert.Equal(t, "https://myaccount.example.com/settings/", nav.CleanURL().String())
	assert.Equal(t, "https://myaccount.example.com/settings/?code=abc&state=s#id_token=x", nav.URL().String())
}

func TestNavigationContextIsNotMutated(t *testing.T) {
	nav := NewNavigationContext(mustParse(t, "https://myaccount.example.com/?code=abc"))

	nav.URL().RawQuery = ""
	q := nav.Query()
	q.Del("code")

	assert.True(t, nav.IsCallback())
	assert.Equal(t, "abc", nav.Query().Get("code"))
}
