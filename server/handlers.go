package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/ugate-admin/auth"
	"github.com/jrsteele09/ugate-admin/identity"
	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/superadmin"
	"github.com/rs/zerolog"
)

const maxRequestBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type indexResponse struct {
	AppName string      `json:"appName"`
	Session auth.Status `json:"status"`
}

type directLoginRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IndexHandler is the application root every expired session lands on
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, indexResponse{AppName: s.config.GetAppName(), Session: s.session.State().Status})
	}
}

// LoginHandler signs in with identifier and password
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds identity.Credentials
		if err := decodeJSON(r, &creds); err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.session.Login(r.Context(), creds); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.session.State())
	}
}

// DirectLoginHandler adopts an existing token pair
func (s *Server) DirectLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req directLoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.session.AdoptTokens(r.Context(), req.AccessToken, req.RefreshToken); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.session.State())
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.Logout(r.Context())
		writeJSON(w, http.StatusOK, s.session.State())
	}
}

// SessionHandler reports the session state without gating
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.session.State())
	}
}

func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.admin.DashboardStats(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) GlobalStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.admin.GlobalStats(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// SyndicatesHandler lists syndicates, ?page= and ?size= are optional
func (s *Server) SyndicatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := intParam(r, "page", 0)
		if err != nil {
			writeError(w, r, err)
			return
		}
		size, err := intParam(r, "size", superadmin.DefaultPageSize)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out, err := s.admin.ListSyndicates(r.Context(), page, size)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) SyndicateActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action, ok := superadmin.ParseAction(r.PathValue("action"))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "action inconnue"})
			return
		}

		out, err := s.admin.ApplyAction(r.Context(), r.PathValue("id"), action)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if user := UserFromContext(r.Context()); user != nil {
			zerolog.Ctx(r.Context()).Info().Str("user_id", user.ID).Str("syndicate_id", out.ID).Str("action", string(action)).Msg("syndicate action applied")
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) UpdateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req superadmin.UpdateProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.admin.UpdateProfile(r.Context(), req); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req superadmin.ChangePasswordRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.admin.ChangePassword(r.Context(), req); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto the console's HTTP contract. A session that
// can no longer be used sends the client back to the root.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	var apiErr *apperrors.APIError
	switch {
	case errors.Is(err, apperrors.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: apperrors.UserMessage(err)})
	case errors.Is(err, apperrors.ErrSessionExpired), errors.Is(err, apperrors.ErrNoRefreshToken):
		logger.Info().Err(err).Msg("session expired, redirecting")
		redirectHome(w, r)
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.Status, errorBody{Error: apiErr.Message})
	case errors.Is(err, apperrors.ErrInvalidRequest),
		errors.Is(err, apperrors.ErrMissingIdentifier),
		errors.Is(err, apperrors.ErrMissingPassword),
		errors.Is(err, auth.ErrMissingTokens):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		logger.Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: apperrors.UserMessage(err)})
	}
}

func decodeJSON(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return errors.Join(apperrors.ErrInvalidRequest, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Join(apperrors.ErrInvalidRequest, err)
	}
	return nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Join(apperrors.ErrInvalidRequest, errors.New(name+" must be a number"))
	}
	return n, nil
}
