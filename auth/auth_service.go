package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/ugate-admin/identity"
	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultRefreshInterval     = 10 * time.Minute
	defaultDirectLoginLifetime = 15 * time.Minute
	mePath                     = "/auth/me"
)

// Service is the session context: it owns the authentication state, the
// background refresh timer and the subscribers that render the state.
// Network calls never run under the state lock.
type Service struct {
	deps                Deps
	refreshInterval     time.Duration
	directLoginLifetime time.Duration
	requiredRoles       []users.RoleType

	mu          sync.Mutex
	state       State
	epoch       uint64 // bumped by every login, logout and termination
	closed      bool
	subscribers map[int]chan State
	nextSubID   int
	bgCancel    context.CancelFunc
	bgDone      chan struct{}
}

// ServiceOption configures the Service
type ServiceOption func(*Service)

// WithRefreshInterval sets the background refresh period
func WithRefreshInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithDirectLoginLifetime sets the lifetime assumed for adopted tokens
func WithDirectLoginLifetime(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.directLoginLifetime = d
		}
	}
}

// WithRequiredRoles replaces the role gate. The user needs any one of roles.
func WithRequiredRoles(roles ...users.RoleType) ServiceOption {
	return func(s *Service) {
		if len(roles) > 0 {
			s.requiredRoles = roles
		}
	}
}

// NewService creates a session context in the Initializing state
func NewService(deps Deps, options ...ServiceOption) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("[NewService] Store is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("[NewService] Identity client is required")
	}
	if deps.API == nil {
		return nil, errors.New("[NewService] API client is required")
	}
	if deps.Refresher == nil {
		return nil, errors.New("[NewService] Refresher is required")
	}

	s := &Service{
		deps:                deps,
		refreshInterval:     defaultRefreshInterval,
		directLoginLifetime: defaultDirectLoginLifetime,
		requiredRoles:       users.AdminRoles,
		state:               State{Status: StatusInitializing, Loading: true},
		subscribers:         make(map[int]chan State),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Init restores a persisted session. The stored tokens are checked against
// /auth/me; any failure leaves the context Unauthenticated with an empty store.
func (s *Service) Init(ctx context.Context) error {
	epoch, err := s.begin(false)
	if err != nil {
		return err
	}

	if _, ok := s.deps.Store.Read(ctx); !ok {
		s.settle(epoch, State{Status: StatusUnauthenticated})
		return nil
	}

	var profile users.Profile
	if err := s.deps.API.Get(ctx, mePath, nil, &profile); err != nil {
		log.Err(err).Msg("restoring session failed")
		s.discard(ctx, epoch, err)
		return errors.Wrap(err, "[Service.Init] resolving current user")
	}

	if !profile.HasAnyRole(s.requiredRoles...) {
		log.Warn().Str("user_id", profile.ID).Strs("roles", profile.Roles).Msg("stored session lacks an admin role")
		s.discard(ctx, epoch, apperrors.ErrForbidden)
		return apperrors.ErrForbidden
	}

	if err := s.deps.Store.ReplaceProfile(ctx, &profile); err != nil {
		log.Err(err).Msg("persisting refreshed profile failed")
	}

	if !s.authenticate(epoch, &profile) {
		return apperrors.ErrSessionExpired
	}
	log.Info().Str("user_id", profile.ID).Msg("session restored")
	return nil
}

// Login authenticates with the identity provider. Users without an admin
// role are logged straight out and get ErrForbidden.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) error {
	epoch, err := s.begin(true)
	if err != nil {
		return err
	}

	resp, err := s.deps.Identity.Login(ctx, creds)
	if err != nil {
		s.fail(epoch, err)
		return errors.Wrap(err, "[Service.Login] identity provider login")
	}

	if !resp.User.HasAnyRole(s.requiredRoles...) {
		log.Warn().Str("identifier", creds.Identifier).Strs("roles", resp.User.Roles).Msg("login refused, admin role required")
		s.discard(ctx, epoch, apperrors.ErrForbidden)
		return apperrors.ErrForbidden
	}

	return s.establish(ctx, epoch, resp.Pair, &resp.User)
}

// AdoptTokens starts a session from tokens obtained elsewhere, e.g. handed
// out at registration. The expiry is unknown so a short lifetime is assumed.
func (s *Service) AdoptTokens(ctx context.Context, accessToken, refreshToken string) error {
	accessToken, refreshToken = strings.TrimSpace(accessToken), strings.TrimSpace(refreshToken)
	if accessToken == "" || refreshToken == "" {
		return ErrMissingTokens
	}

	epoch, err := s.begin(true)
	if err != nil {
		return err
	}

	profile, err := s.deps.Identity.Me(ctx, accessToken)
	if err != nil {
		s.fail(epoch, err)
		return errors.Wrap(err, "[Service.AdoptTokens] resolving token owner")
	}

	if !profile.HasAnyRole(s.requiredRoles...) {
		s.discard(ctx, epoch, apperrors.ErrForbidden)
		return apperrors.ErrForbidden
	}

	pair := token.Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    token.BearerType,
		ExpiresIn:    int64(s.directLoginLifetime / time.Second),
	}
	return s.establish(ctx, epoch, pair, profile)
}

// Logout ends the session unconditionally
func (s *Service) Logout(ctx context.Context) {
	s.end(ctx, "", true)
	log.Info().Msg("logged out")
}

// TerminateSession ends the session after an unrecoverable token failure.
// It is handed to the refresh coordinator and the request wrapper, so it can
// run beneath the refresh loop and never waits for it.
func (s *Service) TerminateSession(reason error) {
	log.Warn().Err(reason).Msg("session terminated")
	s.end(context.Background(), apperrors.UserMessage(apperrors.ErrSessionExpired), false)
}

// Close stops the background refresh and releases subscribers. The stored
// session is kept for the next start. Transitions still in flight are
// discarded, so no refresh loop can start once Close has begun.
func (s *Service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.epoch++
		for id, ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, id)
		}
	}
	s.mu.Unlock()

	s.stopBackground(true)
}

// State returns a snapshot of the current state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// IsAuthenticated reports whether a session is active
func (s *Service) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status == StatusAuthenticated
}

// User returns the current profile, nil when unauthenticated
func (s *Service) User() *users.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.User.Clone()
}

// Subscribe returns a channel receiving every state transition, starting with
// the current state. Slow subscribers only see the latest state. cancel
// unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- s.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// establish persists a vetted session and enters Authenticated
func (s *Service) establish(ctx context.Context, epoch uint64, pair token.Pair, profile *users.Profile) error {
	if !s.current(epoch) {
		return apperrors.ErrSessionExpired
	}
	if err := s.deps.Store.Save(ctx, pair, profile); err != nil {
		s.fail(epoch, err)
		return errors.Wrap(err, "[Service.establish] saving session")
	}
	if !s.authenticate(epoch, profile) {
		// logged out or closed while the session was being saved
		if err := s.deps.Store.Clear(ctx); err != nil {
			log.Err(err).Msg("clearing session store failed")
		}
		return apperrors.ErrSessionExpired
	}
	log.Info().Str("user_id", profile.ID).Strs("roles", profile.Roles).Msg("session established")
	return nil
}

// begin starts a transition: it bumps the epoch and publishes Loading
func (s *Service) begin(keepStatus bool) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrServiceClosed
	}

	s.epoch++
	next := s.state.clone()
	if !keepStatus {
		next.Status = StatusInitializing
	}
	next.Loading = true
	next.Err = ""
	s.setStateLocked(next)
	return s.epoch, nil
}

func (s *Service) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch && !s.closed
}

// settle publishes next if no other transition happened since epoch
func (s *Service) settle(epoch uint64, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.closed {
		return false
	}
	s.setStateLocked(next)
	return true
}

// fail records err without touching the stored session
func (s *Service) fail(epoch uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.closed {
		return
	}
	next := s.state.clone()
	next.Loading = false
	next.Err = apperrors.UserMessage(err)
	if next.Status == StatusInitializing {
		next.Status = StatusUnauthenticated
	}
	s.setStateLocked(next)
}

// discard clears the store and leaves the context Unauthenticated with err
func (s *Service) discard(ctx context.Context, epoch uint64, err error) {
	s.stopBackground(true)
	if clearErr := s.deps.Store.Clear(ctx); clearErr != nil {
		log.Err(clearErr).Msg("clearing session store failed")
	}
	s.settle(epoch, State{Status: StatusUnauthenticated, Err: apperrors.UserMessage(err)})
}

// authenticate enters Authenticated and (re)starts the background refresh
func (s *Service) authenticate(epoch uint64, profile *users.Profile) bool {
	s.stopBackground(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.closed {
		return false
	}
	s.setStateLocked(State{Status: StatusAuthenticated, Authenticated: true, User: profile.Clone()})
	s.startBackgroundLocked()
	return true
}

// end leaves Authenticated: timer stopped, store cleared, state published
func (s *Service) end(ctx context.Context, errMsg string, wait bool) {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()

	s.stopBackground(wait)
	if err := s.deps.Store.Clear(ctx); err != nil {
		log.Err(err).Msg("clearing session store failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setStateLocked(State{Status: StatusUnauthenticated, Err: errMsg})
}

func (s *Service) setStateLocked(next State) {
	s.state = next
	for _, ch := range s.subscribers {
		publish(ch, next.clone())
	}
}

// publish delivers st, replacing an undelivered older state
func publish(ch chan State, st State) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- st:
	default:
	}
}
