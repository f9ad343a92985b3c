// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer sources.
// - External errors must be wrapped via this package's error helpers.
package config

import "time"

// Backend names accepted by the store and idempotency selectors.
const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"

	IdempotencyStore = "store"
	IdempotencyRedis = "redis"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the document store: memory or firestore.
	StoreBackend string `koanf:"store_backend"`

	// FirestoreProject and FirestoreCollection configure the firestore
	// backend. The project is required when that backend is selected.
	FirestoreProject    string `koanf:"firestore_project"`
	FirestoreCollection string `koanf:"firestore_collection"`

	// IdempotencyBackend selects where claims live: store or redis.
	// "store" shares the document store; "redis" keeps claims in a
	// separate Redis instance so claim traffic never contends with
	// session transactions.
	IdempotencyBackend string `koanf:"idempotency_backend"`

	// RedisAddr and RedisDB configure the redis claim backend.
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`

	// IdempotencyTTLHours bounds how long a completed claim is replayable.
	IdempotencyTTLHours int `koanf:"idempotency_ttl_hours"`

	// ProcessingTimeoutSeconds is the soft lock on processing claims;
	// past it a new attempt may take the key over.
	ProcessingTimeoutSeconds int `koanf:"processing_timeout_seconds"`

	// MaxEventAgeHours rejects events claiming timestamps older than this.
	MaxEventAgeHours int `koanf:"max_event_age_hours"`

	// ClockDriftWindowMinutes tolerates this much client/server clock gap
	// before flagging an event as drifted.
	ClockDriftWindowMinutes int `koanf:"clock_drift_window_minutes"`

	// MaxFutureSkewMinutes rejects events claiming timestamps further in
	// the future than this.
	MaxFutureSkewMinutes int `koanf:"max_future_skew_minutes"`

	// DedupeCacheSize bounds the advisory duplicate-id cache.
	DedupeCacheSize int `koanf:"dedupe_cache_size"`

	// ObserveQueueSize bounds the telemetry signal buffer.
	ObserveQueueSize int `koanf:"observe_queue_size"`

	// ObserveDrainWorkers sets the telemetry drain goroutine count.
	ObserveDrainWorkers int `koanf:"observe_drain_workers"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		Addr:                     ":8080",
		StoreBackend:             StoreMemory,
		FirestoreCollection:      "pacelog",
		IdempotencyBackend:       IdempotencyStore,
		RedisAddr:                "localhost:6379",
		RedisDB:                  0,
		IdempotencyTTLHours:      24,
		ProcessingTimeoutSeconds: 120,
		MaxEventAgeHours:         24,
		ClockDriftWindowMinutes:  5,
		MaxFutureSkewMinutes:     10,
		DedupeCacheSize:          50_000,
		ObserveQueueSize:         10_000,
		ObserveDrainWorkers:      2,
	}
}

// IdempotencyTTL returns the claim TTL as a duration.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

// ProcessingTimeout returns the soft lock timeout as a duration.
func (c *Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeoutSeconds) * time.Second
}

// MaxEventAge returns the stale-event bound as a duration.
func (c *Config) MaxEventAge() time.Duration {
	return time.Duration(c.MaxEventAgeHours) * time.Hour
}

// ClockDriftWindow returns the drift tolerance as a duration.
func (c *Config) ClockDriftWindow() time.Duration {
	return time.Duration(c.ClockDriftWindowMinutes) * time.Minute
}

// MaxFutureSkew returns the future-timestamp bound as a duration.
func (c *Config) MaxFutureSkew() time.Duration {
	return time.Duration(c.MaxFutureSkewMinutes) * time.Minute
}
