package jwt

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/ugate-admin/internal/utils"
)

// Claims is the subset of access token claims the console displays.
// The values are decoded without signature verification and must never be
// used to make an authorization decision; the identity provider's /auth/me
// answer is authoritative.
type Claims struct {
	Sub   string   `json:"sub,omitempty"`   // Users unique ID
	Email string   `json:"email,omitempty"` // Email, when the provider embeds it
	Role  string   `json:"role,omitempty"`  // Single role claim used by some issuers
	Roles []string `json:"roles,omitempty"` // Roles assigned to the User
	Exp   int64    `json:"exp,omitempty"`   // Expiration
	Iat   int64    `json:"iat,omitempty"`   // Issued at time
}

// ExpiresAt returns the exp claim as a time, zero when absent
func (c *Claims) ExpiresAt() time.Time {
	if c == nil || c.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(c.Exp, 0)
}

// AllRoles merges the role and roles claims
func (c *Claims) AllRoles() []string {
	if c == nil {
		return nil
	}
	if c.Role == "" {
		return c.Roles
	}
	for _, r := range c.Roles {
		if r == c.Role {
			return c.Roles
		}
	}
	return append([]string{c.Role}, c.Roles...)
}

// DecodeClaims parses rawToken without verifying it. Malformed input returns nil.
func DecodeClaims(rawToken string) *Claims {
	if strings.TrimSpace(rawToken) == "" {
		return nil
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	var roles []string
	if claimRoles, ok := claims["roles"].([]any); ok {
		roles = utils.ToStringSlice(claimRoles)
	}

	return &Claims{
		Sub:   sub,
		Email: email,
		Role:  role,
		Roles: roles,
		Exp:   int64(exp),
		Iat:   int64(iat),
	}
}
