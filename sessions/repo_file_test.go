package sessions_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/ugate-admin/sessions"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func sampleFields() sessions.Fields {
	return sessions.Fields{
		sessions.KeyAccessToken:  "A1",
		sessions.KeyRefreshToken: "R1",
		sessions.KeyUserInfo:     `{"id":"u-1","email":"root@ugate.test","roles":["ADMIN"]}`,
		sessions.KeyTokenExpiry:  "1777892400000",
	}
}

func TestFileRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("plain round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "session.json")
		repo, err := sessions.NewFileRepo(path)
		require.NoError(t, err)

		fields, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, fields)

		require.NoError(t, repo.Replace(ctx, sampleFields()))
		fields, err = repo.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, sampleFields(), fields)

		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(raw), sessions.KeyAccessToken)

		require.NoError(t, repo.Remove(ctx))
		require.NoError(t, repo.Remove(ctx))
		fields, err = repo.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, fields)
	})

	t.Run("encrypted round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.bin")
		repo, err := sessions.NewFileRepo(path, sessions.WithEncryptionKey(testKey(7)))
		require.NoError(t, err)

		require.NoError(t, repo.Replace(ctx, sampleFields()))
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(raw), "A1")
		require.NotContains(t, string(raw), sessions.KeyAccessToken)

		fields, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, sampleFields(), fields)
	})

	t.Run("wrong key reads as absent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.bin")
		writer, err := sessions.NewFileRepo(path, sessions.WithEncryptionKey(testKey(1)))
		require.NoError(t, err)
		require.NoError(t, writer.Replace(ctx, sampleFields()))

		reader, err := sessions.NewFileRepo(path, sessions.WithEncryptionKey(testKey(2)))
		require.NoError(t, err)
		fields, err := reader.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, fields)
	})

	t.Run("garbage reads as absent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o600))
		repo, err := sessions.NewFileRepo(path)
		require.NoError(t, err)
		fields, err := repo.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, fields)
	})

	t.Run("invalid key size", func(t *testing.T) {
		_, err := sessions.NewFileRepo(filepath.Join(t.TempDir(), "s.json"), sessions.WithEncryptionKey([]byte("short")))
		require.Error(t, err)
		_, err = sessions.NewFileRepo("")
		require.Error(t, err)
	})

	t.Run("store survives restart", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.bin")
		repo, err := sessions.NewFileRepo(path, sessions.WithEncryptionKey(testKey(3)))
		require.NoError(t, err)
		store, err := sessions.NewStore(repo)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, token.Pair{AccessToken: "A1", RefreshToken: "R1"}, adminProfile()))

		reopened, err := sessions.NewFileRepo(path, sessions.WithEncryptionKey(testKey(3)))
		require.NoError(t, err)
		restarted, err := sessions.NewStore(reopened)
		require.NoError(t, err)
		rec, ok := restarted.Read(ctx)
		require.True(t, ok)
		require.Equal(t, "A1", rec.AccessToken)
		require.True(t, rec.Profile().IsAdmin())
	})
}
