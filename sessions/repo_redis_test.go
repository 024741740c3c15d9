package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/ugate-admin/sessions"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T, opts ...sessions.RedisRepoOption) (*sessions.RedisRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo, err := sessions.NewRedisRepo(rdb, "console-a", opts...)
	require.NoError(t, err)
	return repo, mr
}

func TestRedisRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		repo, mr := newRedisRepo(t)
		require.Equal(t, "console-a:session", repo.Key())

		fields, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, fields)

		require.NoError(t, repo.Replace(ctx, sampleFields()))
		fields, err = repo.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, sampleFields(), fields)
		require.Equal(t, "A1", mr.HGet("console-a:session", sessions.KeyAccessToken))
	})

	t.Run("replace drops stale fields", func(t *testing.T) {
		repo, mr := newRedisRepo(t)
		mr.HSet("console-a:session", "leftover", "x")

		require.NoError(t, repo.Replace(ctx, sampleFields()))
		fields, err := repo.Load(ctx)
		require.NoError(t, err)
		require.NotContains(t, fields, "leftover")
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		repo, mr := newRedisRepo(t)
		require.NoError(t, repo.Replace(ctx, sampleFields()))
		require.NoError(t, repo.Remove(ctx))
		require.NoError(t, repo.Remove(ctx))
		require.False(t, mr.Exists("console-a:session"))
	})

	t.Run("ttl", func(t *testing.T) {
		repo, mr := newRedisRepo(t, sessions.WithTTL(time.Hour))
		require.NoError(t, repo.Replace(ctx, sampleFields()))
		require.Equal(t, time.Hour, mr.TTL("console-a:session"))

		mr.FastForward(2 * time.Hour)
		fields, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, fields)
	})

	t.Run("store over redis falls back to memory when redis goes away", func(t *testing.T) {
		repo, mr := newRedisRepo(t)
		store, err := sessions.NewStore(repo)
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, token.Pair{AccessToken: "A1", RefreshToken: "R1"}, adminProfile()))
		require.False(t, store.Degraded())

		mr.Close()
		rec, ok := store.Read(ctx)
		require.True(t, ok)
		require.Equal(t, "A1", rec.AccessToken)
		require.True(t, store.Degraded())
	})

	t.Run("nil client", func(t *testing.T) {
		_, err := sessions.NewRedisRepo(nil, "")
		require.Error(t, err)
	})
}
