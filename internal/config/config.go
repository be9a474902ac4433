package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the service.
type Config struct {
	Addr         string        `envconfig:"AUTHGATE_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"AUTHGATE_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"AUTHGATE_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"AUTHGATE_IDLE_TIMEOUT" default:"60s"`

	PGDSN string `envconfig:"AUTHGATE_PG_DSN"`

	// AccessTokenSecret and RefreshTokenSecret must be distinct keys: the
	// refresh flow verifies presented credentials against its own key.
	AccessTokenSecret  string        `envconfig:"AUTHGATE_ACCESS_TOKEN_SECRET" required:"true"`
	RefreshTokenSecret string        `envconfig:"AUTHGATE_REFRESH_TOKEN_SECRET" required:"true"`
	TokenIssuer        string        `envconfig:"AUTHGATE_TOKEN_ISSUER" default:"authgate"`
	TokenAudience      string        `envconfig:"AUTHGATE_TOKEN_AUDIENCE" default:"authgate-api"`
	AccessTokenTTL     time.Duration `envconfig:"AUTHGATE_ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL    time.Duration `envconfig:"AUTHGATE_REFRESH_TOKEN_TTL" default:"168h"`

	// CookieSecure should only be disabled for local development over HTTP.
	CookieSecure bool `envconfig:"AUTHGATE_COOKIE_SECURE" default:"true"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token lifetimes must be greater than zero")
	}
	return &cfg, nil
}
