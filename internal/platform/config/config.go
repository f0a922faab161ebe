// Package config builds service configuration from the environment so main
// stays lean. Secrets (the Khalti API key in particular) are only ever read
// from the environment, never compiled in.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backend names accepted by StoreBackend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config captures every recognized option.
type Config struct {
	Addr        string `env:"SERVER_ADDR" envDefault:":8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Identity provider settings. Issuer defaults to https://<domain>/ with
	// the trailing slash the provider's tokens carry.
	Auth0Domain   string        `env:"AUTH0_DOMAIN"`
	Auth0Audience string        `env:"AUTH0_AUDIENCE"`
	Auth0Issuer   string        `env:"AUTH0_ISSUER"`
	JWKSCacheTTL  time.Duration `env:"AUTH_JWKS_CACHE_TTL" envDefault:"1h"`

	// Frontend base URL used for the payment return redirect.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	KhaltiSecretKey string `env:"KHALTI_SECRET_KEY"`
	KhaltiBaseURL   string `env:"KHALTI_BASE_URL" envDefault:"https://a.khalti.com/api/v2"`

	// StoreBackend selects the persistence used for local users and the
	// purchase ledger: memory, postgres or redis.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	PostgresDSN  string `env:"POSTGRES_DSN"`
	RedisAddr    string `env:"REDIS_ADDR"`
	RedisDB      int    `env:"REDIS_DB" envDefault:"0"`
}

// Load parses configuration from the environment, reading an optional .env
// file first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Auth0Domain == "" {
		return nil, fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if cfg.Auth0Audience == "" {
		return nil, fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if cfg.KhaltiSecretKey == "" {
		return nil, fmt.Errorf("KHALTI_SECRET_KEY is required")
	}
	if cfg.Auth0Issuer == "" {
		cfg.Auth0Issuer = "https://" + cfg.Auth0Domain + "/"
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND=postgres")
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when STORE_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return &cfg, nil
}

// JWKSURL is the provider's published key-set endpoint.
func (c *Config) JWKSURL() string {
	return "https://" + c.Auth0Domain + "/.well-known/jwks.json"
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
