package auth_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/ugate-admin/auth"
	"github.com/jrsteele09/ugate-admin/identity"
	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/sessions"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/token/refresh"
	"github.com/jrsteele09/ugate-admin/token/refresh/refresherfake"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/stretchr/testify/require"
)

var (
	superAdmin = users.Profile{ID: "u-1", Email: "root@ugate.io", FirstName: "Awa", Roles: []string{"SUPER_ADMIN"}}
	plainUser  = users.Profile{ID: "u-2", Email: "member@ugate.io", Roles: []string{"USER"}}
	loginPair  = token.Pair{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 3600}
)

// fakeIdentity answers Login and Me from memory
type fakeIdentity struct {
	mu       sync.Mutex
	profile  users.Profile
	err      error
	meTokens []string
}

func (f *fakeIdentity) Login(_ context.Context, creds identity.Credentials) (*identity.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &identity.LoginResponse{Pair: loginPair, User: *f.profile.Clone()}, nil
}

func (f *fakeIdentity) Me(_ context.Context, accessToken string) (*users.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meTokens = append(f.meTokens, accessToken)
	if f.err != nil {
		return nil, f.err
	}
	return f.profile.Clone(), nil
}

// fakeAPI answers GET /auth/me
type fakeAPI struct {
	mu      sync.Mutex
	profile users.Profile
	err     error
	paths   []string
}

func (f *fakeAPI) Get(_ context.Context, path string, _ url.Values, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.err != nil {
		return f.err
	}
	*(out.(*users.Profile)) = *f.profile.Clone()
	return nil
}

type fixture struct {
	store       *sessions.Store
	identity    *fakeIdentity
	api         *fakeAPI
	refresher   *refresherfake.FakeRefresher
	coordinator *refresh.Coordinator
	service     *auth.Service
}

// gatedRepo blocks the first Replace until release is closed
type gatedRepo struct {
	*sessions.InMemoryRepo
	entered chan struct{}
	release chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{InMemoryRepo: sessions.NewInMemoryRepo(), entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (r *gatedRepo) Replace(ctx context.Context, fields sessions.Fields) error {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
	return r.InMemoryRepo.Replace(ctx, fields)
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, sessions.NewInMemoryRepo(), opts...)
}

func newFixtureWithRepo(t *testing.T, repo sessions.Repo, opts ...auth.ServiceOption) *fixture {
	t.Helper()

	store, err := sessions.NewStore(repo)
	require.NoError(t, err)

	f := &fixture{
		store:     store,
		identity:  &fakeIdentity{profile: superAdmin},
		api:       &fakeAPI{profile: superAdmin},
		refresher: refresherfake.NewFakeRefresher(token.Pair{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: 3600}),
	}

	f.coordinator, err = refresh.NewCoordinator(store, f.refresher)
	require.NoError(t, err)

	f.service, err = auth.NewService(auth.Deps{
		Store:     store,
		Identity:  f.identity,
		API:       f.api,
		Refresher: f.coordinator,
	}, opts...)
	require.NoError(t, err)
	f.coordinator.SetTerminateHook(f.service.TerminateSession)
	t.Cleanup(f.service.Close)
	return f
}

func TestNewService(t *testing.T) {
	_, err := auth.NewService(auth.Deps{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "[NewService]")
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("super admin", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "Secret123"}))

		state := f.service.State()
		require.Equal(t, auth.StatusAuthenticated, state.Status)
		require.True(t, state.Authenticated)
		require.False(t, state.Loading)
		require.Equal(t, "u-1", state.User.ID)
		require.True(t, f.service.IsAuthenticated())

		rec, ok := f.store.Read(ctx)
		require.True(t, ok)
		require.Equal(t, "A1", rec.AccessToken)
		require.Equal(t, "R1", rec.RefreshToken)
	})

	t.Run("user role is refused", func(t *testing.T) {
		f := newFixture(t)
		f.identity.profile = plainUser

		err := f.service.Login(ctx, identity.Credentials{Identifier: "member@ugate.io", Password: "Secret123"})
		require.ErrorIs(t, err, apperrors.ErrForbidden)

		state := f.service.State()
		require.Equal(t, auth.StatusUnauthenticated, state.Status)
		require.False(t, state.Authenticated)
		require.Nil(t, state.User)
		require.Equal(t, "Accès réservé aux super administrateurs uniquement", state.Err)

		_, ok := f.store.Read(ctx)
		require.False(t, ok)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.Init(ctx))
		f.identity.err = apperrors.NewAPIError(401, "Identifiants invalides")

		err := f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "nope"})
		var apiErr *apperrors.APIError
		require.ErrorAs(t, err, &apiErr)

		state := f.service.State()
		require.Equal(t, auth.StatusUnauthenticated, state.Status)
		require.False(t, state.Loading)
		require.Equal(t, "Identifiants invalides", state.Err)
	})
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		f := newFixture(t)
		require.Equal(t, auth.StatusInitializing, f.service.State().Status)

		require.NoError(t, f.service.Init(ctx))
		require.Equal(t, auth.StatusUnauthenticated, f.service.State().Status)
		require.Empty(t, f.api.paths)
	})

	t.Run("restores stored session", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Save(ctx, loginPair, &users.Profile{ID: "u-1", Email: "old@ugate.io", Roles: []string{"SUPER_ADMIN"}}))

		require.NoError(t, f.service.Init(ctx))
		require.Equal(t, []string{"/auth/me"}, f.api.paths)

		state := f.service.State()
		require.Equal(t, auth.StatusAuthenticated, state.Status)
		require.Equal(t, "root@ugate.io", state.User.Email)

		rec, ok := f.store.Read(ctx)
		require.True(t, ok)
		profile := rec.Profile()
		require.NotNil(t, profile)
		require.Equal(t, "root@ugate.io", profile.Email)
	})

	t.Run("stored session no longer valid", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Save(ctx, loginPair, &superAdmin))
		f.api.err = apperrors.ErrSessionExpired

		require.Error(t, f.service.Init(ctx))
		require.Equal(t, auth.StatusUnauthenticated, f.service.State().Status)
		_, ok := f.store.Read(ctx)
		require.False(t, ok)
	})

	t.Run("stored session lost its role", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Save(ctx, loginPair, &superAdmin))
		f.api.profile = plainUser

		require.ErrorIs(t, f.service.Init(ctx), apperrors.ErrForbidden)
		require.Equal(t, auth.StatusUnauthenticated, f.service.State().Status)
		_, ok := f.store.Read(ctx)
		require.False(t, ok)
	})
}

func TestAdoptTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("missing tokens", func(t *testing.T) {
		f := newFixture(t)
		require.ErrorIs(t, f.service.AdoptTokens(ctx, "A9", " "), auth.ErrMissingTokens)
		require.Empty(t, f.identity.meTokens)
	})

	t.Run("adopts with a short lifetime", func(t *testing.T) {
		f := newFixture(t, auth.WithDirectLoginLifetime(15*time.Minute))
		before := time.Now()
		require.NoError(t, f.service.AdoptTokens(ctx, "A9", "R9"))
		require.Equal(t, []string{"A9"}, f.identity.meTokens)

		rec, ok := f.store.Read(ctx)
		require.True(t, ok)
		require.Equal(t, "A9", rec.AccessToken)
		require.Equal(t, "R9", rec.RefreshToken)
		require.WithinDuration(t, before.Add(15*time.Minute), rec.ExpiresAt(), 5*time.Second)
		require.True(t, f.service.IsAuthenticated())
	})

	t.Run("refused role", func(t *testing.T) {
		f := newFixture(t)
		f.identity.profile = plainUser
		require.ErrorIs(t, f.service.AdoptTokens(ctx, "A9", "R9"), apperrors.ErrForbidden)
		_, ok := f.store.Read(ctx)
		require.False(t, ok)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "Secret123"}))

	f.service.Logout(ctx)
	require.Equal(t, auth.StatusUnauthenticated, f.service.State().Status)
	require.Nil(t, f.service.User())
	_, ok := f.store.Read(ctx)
	require.False(t, ok)

	// idempotent
	f.service.Logout(ctx)
	require.Empty(t, f.service.State().Err)
}

func TestBackgroundRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates tokens", func(t *testing.T) {
		f := newFixture(t, auth.WithRefreshInterval(20*time.Millisecond))
		require.NoError(t, f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "Secret123"}))

		require.Eventually(t, func() bool {
			rec, ok := f.store.Read(ctx)
			return ok && rec.AccessToken == "A2"
		}, time.Second, 10*time.Millisecond)
		require.True(t, f.service.IsAuthenticated())
	})

	t.Run("failure ends the session", func(t *testing.T) {
		f := newFixture(t, auth.WithRefreshInterval(20*time.Millisecond))
		f.refresher.Respond(token.Pair{}, errors.New("refresh token revoked"))
		require.NoError(t, f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "Secret123"}))

		require.Eventually(t, func() bool {
			return f.service.State().Status == auth.StatusUnauthenticated
		}, time.Second, 10*time.Millisecond)

		state := f.service.State()
		require.Equal(t, "Session expirée, veuillez vous reconnecter", state.Err)
		_, ok := f.store.Read(ctx)
		require.False(t, ok)

		// the timer is gone, no further attempts
		calls := f.refresher.Calls()
		time.Sleep(100 * time.Millisecond)
		require.Equal(t, calls, f.refresher.Calls())
		require.Equal(t, 1, calls)
	})

	t.Run("stops on logout", func(t *testing.T) {
		f := newFixture(t, auth.WithRefreshInterval(20*time.Millisecond))
		require.NoError(t, f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "Secret123"}))
		f.service.Logout(ctx)

		calls := f.refresher.Calls()
		time.Sleep(100 * time.Millisecond)
		require.Equal(t, calls, f.refresher.Calls())
	})
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	states, cancel := f.service.Subscribe()
	first := <-states
	require.Equal(t, auth.StatusInitializing, first.Status)

	require.NoError(t, f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "Secret123"}))

	// only the latest state is kept for a slow subscriber
	latest := <-states
	require.Equal(t, auth.StatusAuthenticated, latest.Status)
	require.Equal(t, "u-1", latest.User.ID)

	// snapshots are copies
	latest.User.Roles[0] = "USER"
	require.True(t, f.service.User().HasRole(users.RoleSuperAdmin))

	cancel()
	_, open := <-states
	require.False(t, open)
	cancel()
}

func TestClose_DuringLogin(t *testing.T) {
	ctx := context.Background()
	repo := newGatedRepo()
	f := newFixtureWithRepo(t, repo, auth.WithRefreshInterval(10*time.Millisecond))

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "Secret123"})
	}()
	<-repo.entered
	f.service.Close()
	close(repo.release)

	require.ErrorIs(t, <-errCh, apperrors.ErrSessionExpired)
	require.False(t, f.service.IsAuthenticated())
	_, ok := f.store.Read(ctx)
	require.False(t, ok, "a login that completes after Close is not kept")

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, f.refresher.Calls(), "no refresh loop outlives Close")
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.service.Login(ctx, identity.Credentials{Identifier: "root@ugate.io", Password: "Secret123"}))

	states, _ := f.service.Subscribe()
	<-states
	f.service.Close()

	_, open := <-states
	require.False(t, open)
	require.ErrorIs(t, f.service.Init(ctx), auth.ErrServiceClosed)

	// the session survives for the next start
	_, ok := f.store.Read(ctx)
	require.True(t, ok)
}
