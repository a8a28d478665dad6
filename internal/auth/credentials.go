// Package auth manages the bearer credential issued by the login flow. The
// client never validates signatures (it holds no secret); it only stores the
// token and inspects the expiry claim to know when a re-login is needed.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classpoint/chat-client/internal/store"
)

// TokenKey matches the key the mobile client stores its token under.
const TokenKey = "auth_token"

var ErrNoToken = errors.New("no stored credential")

type Credentials struct {
	store store.Store
}

func NewCredentials(s store.Store) *Credentials {
	return &Credentials{store: s}
}

// Token returns the stored bearer token, or ErrNoToken if none is saved.
func (c *Credentials) Token() (string, error) {
	raw, err := c.store.Get(TokenKey)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", ErrNoToken
	}
	return string(raw), nil
}

func (c *Credentials) Save(token string) error {
	return c.store.Set(TokenKey, []byte(token))
}

func (c *Credentials) Clear() error {
	return c.store.Delete(TokenKey)
}

// Expired reports whether the stored token carries an exp claim in the past.
// A missing token counts as expired; a token without an exp claim does not.
func (c *Credentials) Expired(now time.Time) bool {
	token, err := c.Token()
	if err != nil {
		return true
	}
	exp, err := tokenExpiry(token)
	if err != nil {
		// Unparseable token: let the server reject it instead of
		// guessing client-side.
		return false
	}
	if exp == nil {
		return false
	}
	return exp.Before(now)
}

func tokenExpiry(token string) (*time.Time, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, nil
	}
	return &exp.Time, nil
}
