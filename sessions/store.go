package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc is a function that returns the current time
type NowTimeFunc func() time.Time

// Store is the credential store. It owns the single session record and is the
// only writer of its backend.
//
// Backend failures never surface to callers: the store keeps an in-memory
// mirror of the last record it wrote, logs the failure and from then on serves
// reads from the mirror (Degraded reports true).
type Store struct {
	mu              sync.Mutex
	repo            Repo
	mirror          Fields
	generation      uint64
	degraded        bool
	now             NowTimeFunc
	defaultLifetime time.Duration
}

// Option configures a Store
type Option func(*Store)

// WithNowFunc overrides the clock used to compute expiry
func WithNowFunc(now NowTimeFunc) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultLifetime sets the lifetime used when a pair carries no expiresIn
func WithDefaultLifetime(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.defaultLifetime = d
		}
	}
}

// NewStore creates a store over repo
func NewStore(repo Repo, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] repo is required")
	}

	s := &Store{
		repo:            repo,
		now:             time.Now,
		defaultLifetime: token.DefaultLifetime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save persists a new session, replacing any previous one
func (s *Store) Save(ctx context.Context, pair token.Pair, profile *users.Profile) error {
	if !pair.Valid() || pair.RefreshToken == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "[Store.Save] token pair is incomplete")
	}
	if profile == nil {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "[Store.Save] profile is required")
	}

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return apperrors.Wrapf(err, "[Store.Save] marshal profile")
	}

	rec := Record{
		AccessToken:       pair.AccessToken,
		RefreshToken:      pair.RefreshToken,
		UserProfileJSON:   string(profileJSON),
		ExpiryEpochMillis: s.now().Add(pair.Lifetime(s.defaultLifetime)).UnixMilli(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.write(ctx, "save", rec.fields())
	return nil
}

// Read returns the stored record. A partial or unparsable record reads as
// absent and is removed.
func (s *Store) Read(ctx context.Context) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx)
}

// Clear deletes the record. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked(ctx)
	return nil
}

// Rotate applies a refresh result. It keeps the stored profile and replaces
// the tokens and expiry, but only if generation is still current; a session
// saved or cleared after generation was observed yields ErrStaleRefresh.
func (s *Store) Rotate(ctx context.Context, pair token.Pair, generation uint64) error {
	if !pair.Valid() {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "[Store.Rotate] access token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return apperrors.ErrStaleRefresh
	}

	rec, ok := s.readLocked(ctx)
	if !ok {
		return apperrors.ErrNoSession
	}

	rec.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		rec.RefreshToken = pair.RefreshToken
	}
	rec.ExpiryEpochMillis = s.now().Add(pair.Lifetime(s.defaultLifetime)).UnixMilli()

	s.write(ctx, "rotate", rec.fields())
	return nil
}

// ReplaceProfile rewrites the profile of the existing record
func (s *Store) ReplaceProfile(ctx context.Context, profile *users.Profile) error {
	if profile == nil {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "[Store.ReplaceProfile] profile is required")
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return apperrors.Wrapf(err, "[Store.ReplaceProfile] marshal profile")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.readLocked(ctx)
	if !ok {
		return apperrors.ErrNoSession
	}
	rec.UserProfileJSON = string(profileJSON)
	s.write(ctx, "replace_profile", rec.fields())
	return nil
}

// Generation returns the current generation. It changes on every Save and Clear.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Degraded reports whether the backend has failed and the mirror is in use
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// ExpiresAt implements token.ExpirySource
func (s *Store) ExpiresAt(ctx context.Context) (time.Time, bool) {
	rec, ok := s.Read(ctx)
	if !ok {
		return time.Time{}, false
	}
	return rec.ExpiresAt(), true
}

// AccessToken returns the stored access token
func (s *Store) AccessToken(ctx context.Context) (string, bool) {
	rec, ok := s.Read(ctx)
	return rec.AccessToken, ok
}

func (s *Store) readLocked(ctx context.Context) (Record, bool) {
	rec, state := parseFields(s.load(ctx))
	switch state {
	case recordComplete:
		return rec, true
	case recordCorrupt:
		log.Warn().Msg("incomplete or corrupt session record found, clearing")
		s.clearLocked(ctx)
	}
	return Record{}, false
}

func (s *Store) clearLocked(ctx context.Context) {
	s.generation++
	s.mirror = nil
	if err := s.repo.Remove(ctx); err != nil {
		s.markDegraded("clear", err)
	}
}

func (s *Store) load(ctx context.Context) Fields {
	if s.degraded {
		return cloneFields(s.mirror)
	}
	fields, err := s.repo.Load(ctx)
	if err != nil {
		s.markDegraded("load", err)
		return cloneFields(s.mirror)
	}
	s.mirror = cloneFields(fields)
	return fields
}

func (s *Store) write(ctx context.Context, op string, fields Fields) {
	s.mirror = cloneFields(fields)
	if err := s.repo.Replace(ctx, fields); err != nil {
		s.markDegraded(op, err)
	}
}

func (s *Store) markDegraded(op string, err error) {
	if !s.degraded {
		log.Warn().Err(err).Str("op", op).Msg("session backend unavailable, keeping session in memory only")
	} else {
		log.Debug().Err(err).Str("op", op).Msg("session backend still unavailable")
	}
	s.degraded = true
}
