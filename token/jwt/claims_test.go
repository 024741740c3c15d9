package jwt_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/ugate-admin/token/jwt"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("not-the-provider-key"))
	require.NoError(t, err)
	return raw
}

func TestDecodeClaims(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("decodes without verification", func(t *testing.T) {
		raw := signed(t, jwtlib.MapClaims{
			"sub":   "user-1",
			"email": "admin@ugate.test",
			"role":  "SUPER_ADMIN",
			"roles": []any{"ADMIN", 42},
			"exp":   exp.Unix(),
			"iat":   exp.Add(-time.Hour).Unix(),
		})

		claims := jwt.DecodeClaims(raw)
		require.NotNil(t, claims)
		require.Equal(t, "user-1", claims.Sub)
		require.Equal(t, "admin@ugate.test", claims.Email)
		require.Equal(t, []string{"ADMIN"}, claims.Roles)
		require.Equal(t, []string{"SUPER_ADMIN", "ADMIN"}, claims.AllRoles())
		require.True(t, claims.ExpiresAt().Equal(exp))
	})

	t.Run("malformed input", func(t *testing.T) {
		require.Nil(t, jwt.DecodeClaims(""))
		require.Nil(t, jwt.DecodeClaims("not-a-jwt"))
		require.Nil(t, jwt.DecodeClaims("a.b.c"))
	})
}
