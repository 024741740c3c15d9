package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/ugate-admin/auth"
	"github.com/jrsteele09/ugate-admin/identity"
	"github.com/jrsteele09/ugate-admin/internal/config"
	"github.com/jrsteele09/ugate-admin/superadmin"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/rs/zerolog/log"
)

// SessionContext is the session the console server exposes
type SessionContext interface {
	Login(ctx context.Context, creds identity.Credentials) error
	AdoptTokens(ctx context.Context, accessToken, refreshToken string) error
	Logout(ctx context.Context)
	State() auth.State
	IsAuthenticated() bool
	User() *users.Profile
}

// SuperAdmin is the application-data API the console proxies
type SuperAdmin interface {
	DashboardStats(ctx context.Context) (*superadmin.Stats, error)
	GlobalStats(ctx context.Context) (*superadmin.Stats, error)
	ListSyndicates(ctx context.Context, page, size int) (*superadmin.Page[superadmin.Syndicate], error)
	ApplyAction(ctx context.Context, id string, action superadmin.Action) (*superadmin.Syndicate, error)
	UpdateProfile(ctx context.Context, req superadmin.UpdateProfileRequest) error
	ChangePassword(ctx context.Context, req superadmin.ChangePasswordRequest) error
}

// Server is the console back end. It owns no session of its own: every
// request runs against the one session context it was given.
type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	session SessionContext
	admin   SuperAdmin
}

func New(config config.Config, session SessionContext, admin SuperAdmin) (*Server, error) {
	if config == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if session == nil {
		return nil, errors.New("[Server New] session context is required")
	}
	if admin == nil {
		return nil, errors.New("[Server New] super admin service is required")
	}

	s := &Server{
		env:     config.GetEnv(),
		mux:     http.NewServeMux(),
		config:  config,
		session: session,
		admin:   admin,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes returns the registered patterns in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colourMethod(method), path)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
