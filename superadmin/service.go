package superadmin

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPageSize   = 10
	DefaultUserAgent  = "ugate-admin"
	activityIPAddress = "client-ip"
	entitySyndicate   = "SYNDICATE"
	entityUser        = "USER"
)

// API is the authenticated request wrapper the service runs over
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, in, out any) error
	Put(ctx context.Context, path string, in, out any) error
	Patch(ctx context.Context, path string, in, out any) error
	PostBestEffort(ctx context.Context, path string, in any) error
}

// UserFunc returns the signed-in user, nil when there is none
type UserFunc func() *users.Profile

// Service calls the super-admin endpoints of the application-data API
type Service struct {
	api       API
	user      UserFunc
	userAgent string
	now       func() time.Time
}

// Option configures the Service
type Option func(*Service)

// WithUserAgent sets the user agent recorded in activity logs
func WithUserAgent(ua string) Option {
	return func(s *Service) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithNowFunc overrides the activity timestamp clock
func WithNowFunc(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the super-admin service. user resolves the acting user
// for activity logs.
func NewService(api API, user UserFunc, options ...Option) (*Service, error) {
	if api == nil {
		return nil, errors.New("[superadmin.NewService] API client is required")
	}
	if user == nil {
		user = func() *users.Profile { return nil }
	}
	s := &Service{
		api:       api,
		user:      user,
		userAgent: DefaultUserAgent,
		now:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// DashboardStats returns the analytics KPIs
func (s *Service) DashboardStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.api.Get(ctx, "/super-admin/analytics/dashboard", nil, &stats); err != nil {
		return nil, errors.Wrap(err, "[Service.DashboardStats]")
	}
	return &stats, nil
}

// GlobalStats returns the syndicate management totals
func (s *Service) GlobalStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.api.Get(ctx, "/super-admin/syndicates/dashboard", nil, &stats); err != nil {
		return nil, errors.Wrap(err, "[Service.GlobalStats]")
	}
	return &stats, nil
}

// ListSyndicates returns one page of syndicates. A negative page or a
// non-positive size falls back to the first page of DefaultPageSize.
func (s *Service) ListSyndicates(ctx context.Context, page, size int) (*Page[Syndicate], error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	var out Page[Syndicate]
	if err := s.api.Get(ctx, "/syndicates", query, &out); err != nil {
		return nil, errors.Wrapf(err, "[Service.ListSyndicates] page %d", page)
	}
	return &out, nil
}

func (s *Service) ApproveSyndicate(ctx context.Context, id string) (*Syndicate, error) {
	return s.ApplyAction(ctx, id, ActionApprove)
}

func (s *Service) DisapproveSyndicate(ctx context.Context, id string) (*Syndicate, error) {
	return s.ApplyAction(ctx, id, ActionDisapprove)
}

func (s *Service) ActivateSyndicate(ctx context.Context, id string) (*Syndicate, error) {
	return s.ApplyAction(ctx, id, ActionActivate)
}

func (s *Service) DeactivateSyndicate(ctx context.Context, id string) (*Syndicate, error) {
	return s.ApplyAction(ctx, id, ActionDeactivate)
}

// ApplyAction changes a syndicate's approval or activation state and records
// the change in the activity log.
func (s *Service) ApplyAction(ctx context.Context, id string, action Action) (*Syndicate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Service.ApplyAction] syndicate id is required")
	}
	if _, ok := ParseAction(string(action)); !ok {
		return nil, errors.Wrapf(apperrors.ErrInvalidRequest, "[Service.ApplyAction] unknown action %q", action)
	}

	var out Syndicate
	path := "/super-admin/syndicates/" + url.PathEscape(id) + "/" + string(action)
	if err := s.api.Patch(ctx, path, nil, &out); err != nil {
		return nil, errors.Wrapf(err, "[Service.ApplyAction] %s %s", action, id)
	}
	log.Info().Str("syndicate_id", id).Str("action", string(action)).Msg("syndicate updated")

	s.LogActivity(ctx, Activity{
		Action:     action.activity(),
		EntityType: entitySyndicate,
		EntityID:   id,
		Details:    map[string]any{"name": out.Name},
	})
	return &out, nil
}

// UpdateProfile changes the signed-in super admin's profile
func (s *Service) UpdateProfile(ctx context.Context, req UpdateProfileRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "[Service.UpdateProfile] email is required")
	}
	if err := s.api.Put(ctx, "/super-admin/profile", req, nil); err != nil {
		return errors.Wrap(err, "[Service.UpdateProfile]")
	}

	s.LogActivity(ctx, Activity{Action: "UPDATE_PROFILE", EntityType: entityUser, EntityID: s.userID()})
	return nil
}

// ChangePassword changes the signed-in super admin's password. The new
// password is checked locally before any call is made.
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if req.CurrentPassword == "" {
		return errors.Wrap(apperrors.ErrMissingPassword, "[Service.ChangePassword] current password")
	}
	if err := users.ValidatePasswordStrength(req.NewPassword); err != nil {
		return errors.Wrapf(apperrors.ErrInvalidRequest, "[Service.ChangePassword] %v", err)
	}
	if err := s.api.Post(ctx, "/super-admin/change-password", req, nil); err != nil {
		return errors.Wrap(err, "[Service.ChangePassword]")
	}

	s.LogActivity(ctx, Activity{Action: "CHANGE_PASSWORD", EntityType: entityUser, EntityID: s.userID()})
	return nil
}

// LogActivity posts to the audit trail. It is best effort: failures are
// logged and never returned, and an unauthorized answer leaves the session
// alone.
func (s *Service) LogActivity(ctx context.Context, activity Activity) {
	details := activity.Details
	if details == nil {
		details = map[string]any{}
	}

	entry := ActivityLog{
		UserID:     s.userID(),
		Action:     activity.Action,
		EntityType: activity.EntityType,
		EntityID:   activity.EntityID,
		Timestamp:  s.now().UTC(),
		IPAddress:  activityIPAddress,
		UserAgent:  s.userAgent,
		Details:    details,
	}
	if err := s.api.PostBestEffort(ctx, "/super-admin/activity-logs", entry); err != nil {
		log.Warn().Err(err).Str("action", activity.Action).Msg("recording activity failed")
		return
	}
	log.Debug().Str("action", activity.Action).Msg("activity recorded")
}

func (s *Service) userID() string {
	if u := s.user(); u != nil && u.ID != "" {
		return u.ID
	}
	return "unknown"
}
