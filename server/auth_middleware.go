package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/ugate-admin/users"
	"github.com/rs/zerolog"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyUser stores the signed-in profile
const ContextKeyUser ContextKey = "user"

// RequireSession lets a request through only while the session context is
// Authenticated. Anything else is sent back to the application root.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := s.session.User()
			if !s.session.IsAuthenticated() || user == nil {
				zerolog.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("no session, redirecting")
				redirectHome(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next(w, r.WithContext(ctx))
		}
	}
}

// UserFromContext returns the profile RequireSession attached
func UserFromContext(ctx context.Context) *users.Profile {
	user, _ := ctx.Value(ContextKeyUser).(*users.Profile)
	return user
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirectHome sends the client to the application root. HTMX swaps would
// follow a plain redirect inside the target element, so they get HX-Redirect.
func redirectHome(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", RouteRoot)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
}
