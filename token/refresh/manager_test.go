package refresh_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/sessions"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/token/refresh"
	"github.com/jrsteele09/ugate-admin/token/refresh/refresherfake"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store       *sessions.Store
	refresher   *refresherfake.FakeRefresher
	coordinator *refresh.Coordinator
	now         time.Time

	mu         sync.Mutex
	terminated []error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	store, err := sessions.NewStore(sessions.NewInMemoryRepo(), sessions.WithNowFunc(clock))
	require.NoError(t, err)
	f.store = store
	f.refresher = refresherfake.NewFakeRefresher(token.Pair{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: 3600})

	c, err := refresh.NewCoordinator(store, f.refresher,
		refresh.WithTerminateHook(func(reason error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.terminated = append(f.terminated, reason)
		}),
		refresh.WithOracleOptions(token.WithNowTime(clock)),
	)
	require.NoError(t, err)
	f.coordinator = c
	return f
}

func (f *fixture) login(t *testing.T, expiresIn int64) {
	t.Helper()
	profile := &users.Profile{ID: "u-1", Email: "root@ugate.test", Roles: []string{"SUPER_ADMIN"}}
	require.NoError(t, f.store.Save(context.Background(), token.Pair{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: expiresIn}, profile))
}

func (f *fixture) terminations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.terminated)
}

func TestCoordinator_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("success rotates the store and keeps the profile", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, 3600)

		pair, err := f.coordinator.Refresh(ctx)
		require.NoError(t, err)
		require.Equal(t, "A2", pair.AccessToken)
		require.Equal(t, []string{"R1"}, f.refresher.Received())

		rec, ok := f.store.Read(ctx)
		require.True(t, ok)
		require.Equal(t, "A2", rec.AccessToken)
		require.Equal(t, "R2", rec.RefreshToken)
		require.Equal(t, "u-1", rec.Profile().ID)
		require.Zero(t, f.terminations())
	})

	t.Run("no refresh token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.coordinator.Refresh(ctx)
		require.ErrorIs(t, err, apperrors.ErrNoRefreshToken)
		require.Zero(t, f.refresher.Calls())
		require.Equal(t, 1, f.terminations())
	})

	t.Run("provider rejection ends the session", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, 3600)
		cause := apperrors.NewAPIError(401, "refresh token revoked")
		f.refresher.Respond(token.Pair{}, cause)

		_, err := f.coordinator.Refresh(ctx)
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
		require.ErrorIs(t, err, cause)

		_, ok := f.store.Read(ctx)
		require.False(t, ok)
		require.Equal(t, 1, f.terminations())
	})

	t.Run("failures are not retried", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, 3600)
		f.refresher.Respond(token.Pair{}, errors.New("connection reset"))

		_, err := f.coordinator.Refresh(ctx)
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
		require.Equal(t, 1, f.refresher.Calls())
	})
}

func TestCoordinator_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 30)
	f.refresher.Hold()

	const callers = 5
	results := make(chan error, callers)
	pairs := make(chan token.Pair, callers)

	go func() {
		p, err := f.coordinator.Refresh(ctx)
		pairs <- p
		results <- err
	}()
	<-f.refresher.Started()

	for i := 1; i < callers; i++ {
		go func() {
			p, err := f.coordinator.Refresh(ctx)
			pairs <- p
			results <- err
		}()
	}
	// let the late callers join the in-flight call
	time.Sleep(50 * time.Millisecond)
	f.refresher.Release()

	for i := 0; i < callers; i++ {
		require.NoError(t, <-results)
		require.Equal(t, "A2", (<-pairs).AccessToken)
	}
	require.Equal(t, 1, f.refresher.Calls())
}

func TestCoordinator_LogoutDuringRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 3600)
	f.refresher.Hold()

	errCh := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Refresh(ctx)
		errCh <- err
	}()
	<-f.refresher.Started()

	require.NoError(t, f.store.Clear(ctx))
	f.refresher.Release()

	err := <-errCh
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.ErrorIs(t, err, apperrors.ErrStaleRefresh)

	_, ok := f.store.Read(ctx)
	require.False(t, ok, "a discarded refresh must not resurrect the session")
	require.Zero(t, f.terminations())
}

func TestCoordinator_CancelledCallerDoesNotCancelSharedRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t, 3600)
	f.refresher.Hold()

	shared := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Refresh(context.Background())
		shared <- err
	}()
	<-f.refresher.Started()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.coordinator.Refresh(ctx)
	require.ErrorIs(t, err, context.Canceled)

	f.refresher.Release()
	require.NoError(t, <-shared)
	rec, ok := f.store.Read(context.Background())
	require.True(t, ok)
	require.Equal(t, "A2", rec.AccessToken)
}

func TestCoordinator_TokenSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 3600)

	ts := f.coordinator.TokenSource(ctx)
	tok, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, "A1", tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Zero(t, f.refresher.Calls())

	f.now = f.now.Add(59*time.Minute + time.Second)
	tok, err = ts.Token()
	require.NoError(t, err)
	require.Equal(t, "A2", tok.AccessToken)
	require.Equal(t, 1, f.refresher.Calls())
}

func TestNewCoordinator(t *testing.T) {
	_, err := refresh.NewCoordinator(nil, refresherfake.NewFakeRefresher(token.Pair{}))
	require.Error(t, err)

	store, err := sessions.NewStore(sessions.NewInMemoryRepo())
	require.NoError(t, err)
	_, err = refresh.NewCoordinator(store, nil)
	require.Error(t, err)
}
