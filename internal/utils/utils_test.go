package utils_test

import (
	"testing"

	"github.com/jrsteele09/ugate-admin/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"ADMIN", "USER"}, utils.ToStringSlice([]any{"ADMIN", 3, "USER", nil}))
	require.Empty(t, utils.ToStringSlice(nil))
}
