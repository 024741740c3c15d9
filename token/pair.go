package token

import (
	"time"

	"golang.org/x/oauth2"
)

// DefaultLifetime is applied when the identity provider omits expiresIn
const DefaultLifetime = time.Hour

// BearerType is the token type used on outgoing requests
const BearerType = "Bearer"

// Pair is the token pair issued by the identity provider on login or refresh.
// A pair is never mutated; a refresh supersedes it wholesale.
type Pair struct {
	// AccessToken is the short-lived bearer credential.
	// Usage: "Authorization: Bearer <accessToken>"
	AccessToken string `json:"accessToken"`

	// RefreshToken is the longer-lived credential exchanged at /auth/refresh.
	RefreshToken string `json:"refreshToken"`

	// TokenType is normally "Bearer"; may be omitted by the server.
	TokenType string `json:"tokenType,omitempty"`

	// ExpiresIn is the access token lifetime in seconds. Zero means the server
	// did not say, in which case DefaultLifetime applies.
	ExpiresIn int64 `json:"expiresIn,omitempty"`
}

// Valid reports whether the pair carries an access token
func (p Pair) Valid() bool {
	return p.AccessToken != ""
}

// Lifetime returns the access token lifetime, falling back to def when the
// server did not provide a positive expiresIn.
func (p Pair) Lifetime(def time.Duration) time.Duration {
	if p.ExpiresIn <= 0 {
		if def <= 0 {
			return DefaultLifetime
		}
		return def
	}
	return time.Duration(p.ExpiresIn) * time.Second
}

// Type returns the token type, defaulting to Bearer
func (p Pair) Type() string {
	if p.TokenType == "" {
		return BearerType
	}
	return p.TokenType
}

// ToOAuth2 converts the pair into an oauth2.Token that expires at expiry
func (p Pair) ToOAuth2(expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    p.Type(),
		RefreshToken: p.RefreshToken,
		Expiry:       expiry,
		ExpiresIn:    p.ExpiresIn,
	}
}

// FromOAuth2 converts an oauth2.Token into a Pair. ExpiresIn is derived from
// the token expiry relative to now when the token does not carry it.
func FromOAuth2(t *oauth2.Token, now time.Time) Pair {
	if t == nil {
		return Pair{}
	}
	expiresIn := t.ExpiresIn
	if expiresIn == 0 && !t.Expiry.IsZero() {
		expiresIn = int64(t.Expiry.Sub(now) / time.Second)
		if expiresIn < 0 {
			expiresIn = 0
		}
	}
	return Pair{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresIn:    expiresIn,
	}
}
