package identity

import (
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/users"
)

// Credentials are the login inputs. They are never persisted, and only the
// identifier may be logged.
type Credentials struct {
	Identifier string `json:"identifier"` // Email, username or phone
	Password   string `json:"password"`
}

// LoginResponse is the /auth/login answer
type LoginResponse struct {
	token.Pair
	User users.Profile `json:"user"`
}

// RegisterRequest creates an administrator account
type RegisterRequest struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Phone     string   `json:"phone,omitempty"`
	Service   string   `json:"service"`
	Roles     []string `json:"roles"`
}

// RegisterResponse is the /auth/register answer. Providers that log the new
// account straight in also return a token pair.
type RegisterResponse struct {
	token.Pair
	User    *users.Profile `json:"user,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Role is a role known to the identity provider
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Defaults applied to registrations from the console
const (
	RegisterService = "SYNDICAT"
)
