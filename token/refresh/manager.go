package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const flightKey = "refresh"

// Coordinator performs token refreshes. At most one refresh is in flight at a
// time: concurrent callers share its outcome.
type Coordinator struct {
	store     Store
	refresher Refresher
	oracle    *token.Oracle
	group     singleflight.Group

	hookMu    sync.RWMutex
	terminate TerminateFunc
}

// Option configures a Coordinator
type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	terminate    TerminateFunc
	oracleOption []token.OracleOption
}

// WithTerminateHook sets the hook called when a refresh ends the session
func WithTerminateHook(fn TerminateFunc) Option {
	return func(o *coordinatorOptions) {
		o.terminate = fn
	}
}

// WithOracleOptions configures the oracle used by TokenSource
func WithOracleOptions(opts ...token.OracleOption) Option {
	return func(o *coordinatorOptions) {
		o.oracleOption = append(o.oracleOption, opts...)
	}
}

// NewCoordinator creates a refresh coordinator
func NewCoordinator(store Store, refresher Refresher, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("[NewCoordinator] store is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewCoordinator] refresher is required")
	}

	var o coordinatorOptions
	for _, opt := range opts {
		opt(&o)
	}

	oracle, err := token.NewOracle(store, o.oracleOption...)
	if err != nil {
		return nil, fmt.Errorf("[NewCoordinator] %w", err)
	}

	return &Coordinator{
		store:     store,
		refresher: refresher,
		oracle:    oracle,
		terminate: o.terminate,
	}, nil
}

// SetTerminateHook replaces the terminate hook. The session context registers
// itself here once it has been built.
func (c *Coordinator) SetTerminateHook(fn TerminateFunc) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.terminate = fn
}

// Oracle returns the expiry oracle over the coordinator's store
func (c *Coordinator) Oracle() *token.Oracle {
	return c.oracle
}

// Refresh exchanges the stored refresh token for a new pair and stores it.
//
// A missing refresh token fails with ErrNoRefreshToken; any provider failure
// fails with ErrSessionExpired. Both clear the store and fire the terminate
// hook. A result that arrives after the session was replaced or cleared is
// discarded and reported as ErrSessionExpired without firing the hook.
//
// If ctx is cancelled the caller stops waiting; the shared refresh carries on
// for the other callers.
func (c *Coordinator) Refresh(ctx context.Context) (token.Pair, error) {
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return token.Pair{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return token.Pair{}, res.Err
		}
		return res.Val.(token.Pair), nil
	}
}

func (c *Coordinator) refresh(ctx context.Context) (token.Pair, error) {
	// Generation first: a Save between the two calls makes the rotate stale
	// rather than writing an old session's tokens over the new one.
	generation := c.store.Generation()
	rec, ok := c.store.Read(ctx)
	if !ok || rec.RefreshToken == "" {
		c.end(ctx, apperrors.ErrNoRefreshToken)
		return token.Pair{}, apperrors.ErrNoRefreshToken
	}

	log.Debug().Msg("refreshing access token")
	pair, err := c.refresher.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		if c.store.Generation() != generation {
			log.Info().Err(err).Msg("refresh failed after the session ended, ignoring")
			return token.Pair{}, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, apperrors.ErrStaleRefresh)
		}
		log.Err(err).Msg("token refresh failed, ending session")
		c.end(ctx, err)
		return token.Pair{}, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
	}

	if err := c.store.Rotate(ctx, pair, generation); err != nil {
		if errors.Is(err, apperrors.ErrStaleRefresh) || errors.Is(err, apperrors.ErrNoSession) {
			log.Info().Msg("refresh result arrived after the session ended, discarding")
			return token.Pair{}, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
		}
		log.Err(err).Msg("storing refreshed tokens failed, ending session")
		c.end(ctx, err)
		return token.Pair{}, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
	}

	log.Info().Int64("expires_in", pair.ExpiresIn).Msg("access token refreshed")
	return pair, nil
}

// end clears the store and notifies the session context
func (c *Coordinator) end(ctx context.Context, reason error) {
	if err := c.store.Clear(ctx); err != nil {
		log.Err(err).Msg("clearing session store failed")
	}

	c.hookMu.RLock()
	hook := c.terminate
	c.hookMu.RUnlock()
	if hook != nil {
		hook(reason)
	}
}

// TokenSource exposes the session as an oauth2.TokenSource. Token refreshes
// first when the stored token is expired or about to be.
func (c *Coordinator) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, c: c}
}

type tokenSource struct {
	ctx context.Context
	c   *Coordinator
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	if ts.c.oracle.IsExpired(ts.ctx) {
		if _, err := ts.c.Refresh(ts.ctx); err != nil {
			return nil, err
		}
	}

	rec, ok := ts.c.store.Read(ts.ctx)
	if !ok {
		return nil, apperrors.ErrSessionExpired
	}
	return rec.Pair().ToOAuth2(rec.ExpiresAt()), nil
}
