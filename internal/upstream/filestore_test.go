package upstream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/denkond/hrgate/internal/errs"
	"github.com/denkond/hrgate/internal/model"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "tokens.json")
	s := NewFileStore(path)

	_, ok, err := s.Load()
	require.NoError(t, err)
	require.False(t, ok, "missing file means no pair")

	pair := model.Tokens{AccessToken: "a1", RefreshToken: "r1"}
	require.NoError(t, s.Save(pair))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pair, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_ReplacesWholesale(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(model.Tokens{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, s.Save(model.Tokens{AccessToken: "a2", RefreshToken: "r2"}))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Tokens{AccessToken: "a2", RefreshToken: "r2"}, got)
}

func TestFileStore_RejectsPartialPair(t *testing.T) {
	t.Parallel()

	s := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.ErrorIs(t, s.Save(model.Tokens{AccessToken: "a1"}), errs.ErrValidation)
	require.ErrorIs(t, s.Save(model.Tokens{RefreshToken: "r1"}), errs.ErrValidation)
}

func TestFileStore_PartialFileReadsAsAbsent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"a1"}`), 0o600))

	_, ok, err := NewFileStore(path).Load()
	require.NoError(t, err)
	require.False(t, ok)
}
