package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/ugate-admin/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:8080", c.GetPort())
	require.Equal(t, "https://auth-service.pynfi.com/api", c.GetAuthBaseURL())
	require.Equal(t, "https://ugate.pynfi.com", c.GetAPIBaseURL())
	require.Equal(t, 20*time.Second, c.GetHTTPTimeout())
	require.Equal(t, 10*time.Minute, c.GetRefreshInterval())
	require.Equal(t, time.Minute, c.GetExpiryMargin())
	require.Equal(t, time.Hour, c.GetDefaultTokenLifetime())
	require.Equal(t, []string{"SUPER_ADMIN", "ADMIN"}, c.GetRequiredRoles())
	require.Equal(t, config.StoreFile, c.GetStoreBackend())

	key, err := c.GetStoreKey()
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("UGATE_AUTH_URL", "http://localhost:9000/api/")
	t.Setenv("UGATE_REFRESH_INTERVAL", "30s")
	t.Setenv("UGATE_STORE", "redis")
	t.Setenv("UGATE_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9000/api", c.GetAuthBaseURL())
	require.Equal(t, 30*time.Second, c.GetRefreshInterval())
	require.Equal(t, config.StoreRedis, c.GetStoreBackend())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("http://b.test"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("http://c.test"))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
app:
  port: "9090"
  api_url: http://api.local
session:
  expiry_margin: 2m
store:
  backend: memory
`), 0o600)
	require.NoError(t, err)

	c, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", c.GetPort())
	require.Equal(t, "http://api.local", c.GetAPIBaseURL())
	require.Equal(t, 2*time.Minute, c.GetExpiryMargin())
	require.Equal(t, config.StoreMemory, c.GetStoreBackend())
}

func TestEnvVars_GetPort(t *testing.T) {
	tests := []struct {
		port string
		want string
	}{
		{"", "127.0.0.1:8080"},
		{"9000", "127.0.0.1:9000"},
		{" 9000 ", "127.0.0.1:9000"},
		{"0.0.0.0:8080", "0.0.0.0:8080"},
		{":8080", ":8080"},
		{"[::1]:8443", "[::1]:8443"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, config.EnvVars{Port: tt.port}.GetPort(), "PORT=%q", tt.port)
	}
}

func TestStore_GetStoreKey(t *testing.T) {
	_, err := config.Store{Key: "zz"}.GetStoreKey()
	require.Error(t, err)

	_, err = config.Store{Key: "abcd"}.GetStoreKey()
	require.ErrorContains(t, err, "32 bytes")

	key, err := config.Store{Key: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"}.GetStoreKey()
	require.NoError(t, err)
	require.Len(t, key, 32)
}
