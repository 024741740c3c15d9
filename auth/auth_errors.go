package auth

import "errors"

var (
	ErrServiceClosed = errors.New("session context closed")
	ErrMissingTokens = errors.New("access and refresh tokens are required")
)
