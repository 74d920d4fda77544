package identity

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

const (
	hashKeyInfo  = "account-dashboard cookie hash key"
	blockKeyInfo = "account-dashboard cookie block key"
)

// transaction is the pending login: it binds the callback to the browser
// that started it.
type transaction struct {
	State    string `json:"s"`
	Nonce    string `json:"n"`
	Verifier string `json:"v"`
}

// cookieJar encodes, signs and encrypts the two cookies the Manager owns.
type cookieJar struct {
	sessionName string
	txnName     string
	domain      string
	secure      bool
	txnTTL      time.Duration

	session *securecookie.SecureCookie
	txn     *securecookie.SecureCookie
}

func newCookieJar(secret, sessionName, domain string, secure bool, txnTTL time.Duration) (*cookieJar, error) {
	hashKey, err := deriveKey(secret, hashKeyInfo, 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(secret, blockKeyInfo, 32)
	if err != nil {
		return nil, err
	}

	// The session record carries its own expiry; only the transaction
	// cookie is bounded by securecookie's timestamp.
	sess := securecookie.New(hashKey, blockKey).MaxAge(0)
	sess.SetSerializer(securecookie.JSONEncoder{})
	txn := securecookie.New(hashKey, blockKey).MaxAge(int(txnTTL.Seconds()))
	txn.SetSerializer(securecookie.JSONEncoder{})

	return &cookieJar{
		sessionName: sessionName,
		txnName:     sessionName + "_txn",
		domain:      domain,
		secure:      secure,
		txnTTL:      txnTTL,
		session:     sess,
		txn:         txn,
	}, nil
}

func deriveKey(secret, info string, n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("identity: derive cookie key: %w", err)
	}
	return key, nil
}

func (j *cookieJar) encodeSession(id string, expires time.Time) (*http.Cookie, error) {
	value, err := j.session.Encode(j.sessionName, id)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     j.sessionName,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

func (j *cookieJar) decodeSession(value string) (string, error) {
	var id string
	if err := j.session.Decode(j.sessionName, value, &id); err != nil {
		return "", err
	}
	return id, nil
}

func (j *cookieJar) encodeTransaction(t transaction, now time.Time) (*http.Cookie, error) {
	value, err := j.txn.Encode(j.txnName, t)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     j.txnName,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		Expires:  now.Add(j.txnTTL),
		MaxAge:   int(j.txnTTL.Seconds()),
		HttpOnly: true,
		Secure:   j.secure,
		// form_post callbacks are cross-site POSTs; Lax would withhold
		// the cookie from them.
		SameSite: j.txnSameSite(),
	}, nil
}

func (j *cookieJar) decodeTransaction(value string) (transaction, error) {
	var t transaction
	err := j.txn.Decode(j.txnName, value, &t)
	return t, err
}

func (j *cookieJar) txnSameSite() http.SameSite {
	if j.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (j *cookieJar) expire(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   j.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   j.secure,
	}
}
