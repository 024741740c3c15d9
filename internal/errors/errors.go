package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Session lifecycle errors
var (
	// ErrNoRefreshToken is returned when a refresh is attempted with nothing to refresh
	ErrNoRefreshToken = errors.New("aucun refresh token disponible")

	// ErrSessionExpired covers every unrecoverable authentication failure
	ErrSessionExpired = errors.New("session expirée, veuillez vous reconnecter")

	// ErrForbidden is returned when a valid user lacks the required admin role
	ErrForbidden = errors.New("accès réservé aux super administrateurs uniquement")

	// ErrStaleRefresh is returned by the credential store when a refresh result
	// arrives after the session it belongs to has been replaced or cleared
	ErrStaleRefresh = errors.New("stale refresh result")

	// ErrNoSession is returned when an operation needs a stored session and none exists
	ErrNoSession = errors.New("no active session")
)

// Request validation errors
var (
	ErrMissingIdentifier = errors.New("identifier is required")
	ErrMissingPassword   = errors.New("password is required")
	ErrInvalidRequest    = errors.New("invalid request")
)

// APIError is a non-2xx response from a remote API. It is recoverable at the
// call site and does not end the session.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// NewAPIError builds an APIError, falling back to the generic "Erreur <status>" message.
func NewAPIError(status int, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("Erreur %d", status)
	}
	return &APIError{Status: status, Message: message}
}

// MessageFromBody extracts the "message" field of a JSON error body, falling
// back to "error". It returns "" when neither is present.
func MessageFromBody(body []byte) string {
	var payload struct {
		Message any `json:"message"`
		Error   any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, v := range []any{payload.Message, payload.Error} {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// FromResponse builds an APIError from a status and body, using fallback when
// the body carries no message. An empty fallback yields "Erreur <status>".
func FromResponse(status int, body []byte, fallback string) *APIError {
	msg := MessageFromBody(body)
	if msg == "" {
		msg = fallback
	}
	return NewAPIError(status, msg)
}

// UserMessage returns the text shown to an operator for err
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return "Accès réservé aux super administrateurs uniquement"
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNoRefreshToken):
		return "Session expirée, veuillez vous reconnecter"
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return err.Error()
}

// IsTerminal reports whether err ends the current session.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrForbidden)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
