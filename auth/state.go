package auth

import "github.com/jrsteele09/ugate-admin/users"

// Status is the lifecycle position of the session context
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
)

// State is a snapshot of the session context as seen by the UI
type State struct {
	Status        Status         `json:"status"`
	Authenticated bool           `json:"isAuthenticated"`
	Loading       bool           `json:"isLoading"`
	User          *users.Profile `json:"user"`
	Err           string         `json:"error,omitempty"`
}

func (s State) clone() State {
	s.User = s.User.Clone()
	return s
}
