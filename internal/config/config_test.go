package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("HRGATE_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("HRGATE_POSTGRES_DSN", "postgres://u:p@localhost:5432/hrgate")
	t.Setenv("HRGATE_UPSTREAM_BASE_URL", "https://ml.example/api/external/v1")
	t.Setenv("HRGATE_UPSTREAM_USERNAME", "svc")
	t.Setenv("HRGATE_UPSTREAM_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.False(t, cfg.Telegram.Debug)
	require.Equal(t, "@company.example", cfg.Auth.DomainSuffix)
	require.Equal(t, 10, cfg.Auth.CodeLength)
	require.Equal(t, time.Second, cfg.Upstream.PollBase)
	require.Equal(t, 10*time.Second, cfg.Upstream.PollCap)
	require.Equal(t, uint64(8), cfg.Upstream.PollAttempts)
	require.NotEmpty(t, cfg.Upstream.TokenFile)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HRGATE_AUTH_DOMAIN_SUFFIX", "@corp.internal")
	t.Setenv("HRGATE_AUTH_CODE_LENGTH", "6")
	t.Setenv("HRGATE_UPSTREAM_TOKEN_FILE", "/var/lib/hrgate/tokens.json")
	t.Setenv("HRGATE_UPSTREAM_POLL_ATTEMPTS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "@corp.internal", cfg.Auth.DomainSuffix)
	require.Equal(t, 6, cfg.Auth.CodeLength)
	require.Equal(t, "/var/lib/hrgate/tokens.json", cfg.Upstream.TokenFile)
	require.Equal(t, uint64(3), cfg.Upstream.PollAttempts)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	// t.Setenv registered the restore; unsetting mid-test is safe.
	require.NoError(t, os.Unsetenv("HRGATE_TELEGRAM_TOKEN"))

	_, err := Load()
	require.Error(t, err)
}
