// Package config loads registryd settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"authright.org/internal/auth"
)

// Config holds every setting of the registry daemon.
type Config struct {
	HTTPAddr      string        `env:"AUTHRIGHT_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr      string        `env:"AUTHRIGHT_GRPC_ADDR" envDefault:":9090"`
	PGDSN         string        `env:"AUTHRIGHT_PG_DSN"`
	AuthSecret    string        `env:"AUTHRIGHT_AUTH_SECRET"`
	TokenTTL      time.Duration `env:"AUTHRIGHT_TOKEN_TTL" envDefault:"1h"`
	Accounts      string        `env:"AUTHRIGHT_ACCOUNTS"`
	BlockInterval time.Duration `env:"AUTHRIGHT_BLOCK_INTERVAL" envDefault:"6s"`
	AMQPURL       string        `env:"AUTHRIGHT_AMQP_URL"`
	AMQPExchange  string        `env:"AUTHRIGHT_AMQP_EXCHANGE" envDefault:"authright.events"`
	RateBurst     int           `env:"AUTHRIGHT_RATE_BURST" envDefault:"200"`
	RatePerSec    float64       `env:"AUTHRIGHT_RATE_PER_SEC" envDefault:"100"`
	LogLevel      string        `env:"AUTHRIGHT_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.BlockInterval <= 0 {
		return errors.New("config: AUTHRIGHT_BLOCK_INTERVAL must be positive")
	}
	if c.Accounts != "" && c.AuthSecret == "" {
		return errors.New("config: AUTHRIGHT_AUTH_SECRET is required when AUTHRIGHT_ACCOUNTS is set")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: AUTHRIGHT_TOKEN_TTL must be positive")
	}
	if c.RateBurst < 0 || c.RatePerSec < 0 {
		return errors.New("config: rate limit settings must not be negative")
	}
	return nil
}

// Directory builds the account directory from AUTHRIGHT_ACCOUNTS.
// An empty setting yields an empty directory.
func (c Config) Directory() (*auth.Directory, error) {
	if c.Accounts == "" {
		return auth.NewDirectory(nil)
	}
	return auth.ParseDirectory(c.Accounts)
}
