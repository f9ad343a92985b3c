package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PACELOG_CONFIG is set
//  3. env (prefix PACELOG_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("PACELOG_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: PACELOG_ADDR, PACELOG_STORE_BACKEND, ...
	// Map env keys like PACELOG_STORE_BACKEND -> store_backend (flat keys).
	envProvider := env.Provider("PACELOG_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "pacelog_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("%w: firestore_project is required for the firestore backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	switch c.IdempotencyBackend {
	case IdempotencyStore, IdempotencyRedis:
	default:
		return fmt.Errorf("%w: unknown idempotency_backend %q", ErrInvalidConfig, c.IdempotencyBackend)
	}
	if c.IdempotencyTTLHours <= 0 {
		return fmt.Errorf("%w: idempotency_ttl_hours must be positive", ErrInvalidConfig)
	}
	if c.ProcessingTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: processing_timeout_seconds must be positive", ErrInvalidConfig)
	}
	return nil
}
