package otp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode_LengthAndAlphabet(t *testing.T) {
	t.Parallel()

	code, err := Code(10)
	require.NoError(t, err)
	require.Len(t, code, 10)
	for _, r := range code {
		require.True(t, strings.ContainsRune(alphabet, r), "unexpected rune %q", r)
	}
}

func TestCode_InvalidLength(t *testing.T) {
	t.Parallel()

	_, err := Code(0)
	require.Error(t, err)
	_, err = Code(-1)
	require.Error(t, err)
}

func TestCode_NotConstant(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		code, err := Code(10)
		require.NoError(t, err)
		seen[code] = true
	}
	require.Greater(t, len(seen), 1)
}
