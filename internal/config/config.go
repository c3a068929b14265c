// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Telegram holds bot transport settings.
type Telegram struct {
	Token string `envconfig:"TOKEN" required:"true"`
	Debug bool   `envconfig:"DEBUG" default:"false"`
}

// Postgres holds backing store settings.
type Postgres struct {
	DSN string `envconfig:"DSN" required:"true"`
}

// Upstream holds inference API settings.
type Upstream struct {
	BaseURL  string `envconfig:"BASE_URL" required:"true"`
	Username string `envconfig:"USERNAME" required:"true"`
	Password string `envconfig:"PASSWORD" required:"true"`

	// TokenFile is where the issued token pair is persisted between runs.
	// Empty means <user config dir>/hrgate/tokens.json.
	TokenFile string `envconfig:"TOKEN_FILE"`

	PollBase     time.Duration `envconfig:"POLL_BASE" default:"1s"`
	PollCap      time.Duration `envconfig:"POLL_CAP" default:"10s"`
	PollAttempts uint64        `envconfig:"POLL_ATTEMPTS" default:"8"`
}

// Auth holds login workflow settings.
type Auth struct {
	// DomainSuffix is the mandatory tail of every acceptable login.
	DomainSuffix string `envconfig:"DOMAIN_SUFFIX" default:"@company.example"`
	CodeLength   int    `envconfig:"CODE_LENGTH" default:"10"`
}

// Config is the full process configuration, populated from HRGATE_* env vars.
type Config struct {
	Telegram Telegram
	Postgres Postgres
	Upstream Upstream
	Auth     Auth
}

// Load reads HRGATE_*-prefixed environment variables into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("HRGATE_TELEGRAM", &cfg.Telegram); err != nil {
		return nil, fmt.Errorf("config telegram: %w", err)
	}
	if err := envconfig.Process("HRGATE_POSTGRES", &cfg.Postgres); err != nil {
		return nil, fmt.Errorf("config postgres: %w", err)
	}
	if err := envconfig.Process("HRGATE_UPSTREAM", &cfg.Upstream); err != nil {
		return nil, fmt.Errorf("config upstream: %w", err)
	}
	if err := envconfig.Process("HRGATE_AUTH", &cfg.Auth); err != nil {
		return nil, fmt.Errorf("config auth: %w", err)
	}
	if cfg.Upstream.TokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config token file: %w", err)
		}
		cfg.Upstream.TokenFile = filepath.Join(dir, "hrgate", "tokens.json")
	}
	return &cfg, nil
}
