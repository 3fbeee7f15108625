// Package config loads daemon and client settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/celerix-dev/celerix-mint/internal/vault"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config is the full runtime configuration.
type Config struct {
	DataDir    string `env:"CELERIX_DATA_DIR" envDefault:"./data"`
	Backend    string `env:"CELERIX_BACKEND" envDefault:"memory"`
	SQLitePath string `env:"CELERIX_SQLITE_PATH" envDefault:"./data/ledger.db"`
	ImportDir  string `env:"CELERIX_IMPORT_DIR"`
	MasterKey  string `env:"CELERIX_MASTER_KEY"`

	TCPHost    string `env:"CELERIX_TCP_HOST" envDefault:"127.0.0.1"`
	Port       string `env:"CELERIX_PORT" envDefault:"7001"`
	HTTPPort   string `env:"CELERIX_HTTP_PORT" envDefault:"7002"`
	DisableTLS bool   `env:"CELERIX_DISABLE_TLS"`
	StoreAddr  string `env:"CELERIX_STORE_ADDR"`

	JWTSecret    string `env:"CELERIX_JWT_SECRET"`
	CallerHeader string `env:"CELERIX_CALLER_HEADER" envDefault:"X-Celerix-Caller"`

	MintToken   string `env:"CELERIX_MINT_TOKEN" envDefault:"celerix"`
	GrantAmount uint64 `env:"CELERIX_GRANT_AMOUNT" envDefault:"100"`

	OTelEndpoint string `env:"CELERIX_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"CELERIX_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("CELERIX_BACKEND must be %q or %q, got %q", BackendMemory, BackendSQLite, c.Backend)
	}
	if c.GrantAmount == 0 {
		return fmt.Errorf("CELERIX_GRANT_AMOUNT must be greater than zero")
	}
	if strings.TrimSpace(c.MintToken) == "" {
		return fmt.Errorf("CELERIX_MINT_TOKEN is required")
	}
	if c.MasterKey != "" {
		if _, err := vault.ParseKey(c.MasterKey); err != nil {
			return fmt.Errorf("CELERIX_MASTER_KEY: %w", err)
		}
	}
	return nil
}

// SealingKey returns the decoded master key, or nil when sealing is off.
func (c Config) SealingKey() []byte {
	if c.MasterKey == "" {
		return nil
	}
	key, err := vault.ParseKey(c.MasterKey)
	if err != nil {
		return nil
	}
	return key
}
