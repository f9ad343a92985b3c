package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pacelog/pacelog/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PACELOG_CONFIG",
		"PACELOG_ADDR",
		"PACELOG_LOG_LEVEL",
		"PACELOG_STORE_BACKEND",
		"PACELOG_FIRESTORE_PROJECT",
		"PACELOG_IDEMPOTENCY_BACKEND",
		"PACELOG_IDEMPOTENCY_TTL_HOURS",
		"PACELOG_PROCESSING_TIMEOUT_SECONDS",
		"PACELOG_DEDUPE_CACHE_SIZE",
	} {
		_ = os.Unsetenv(k)
	}
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)
		convey.Reset(func() { clearConfigEnvVars(t) })

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.IdempotencyBackend, convey.ShouldEqual, config.IdempotencyStore)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PACELOG_ADDR", ":9090")
			_ = os.Setenv("PACELOG_IDEMPOTENCY_BACKEND", "redis")
			_ = os.Setenv("PACELOG_PROCESSING_TIMEOUT_SECONDS", "30")
			_ = os.Setenv("PACELOG_DEDUPE_CACHE_SIZE", "1000")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.IdempotencyBackend, convey.ShouldEqual, config.IdempotencyRedis)
				convey.So(cfg.ProcessingTimeoutSeconds, convey.ShouldEqual, 30)
				convey.So(cfg.DedupeCacheSize, convey.ShouldEqual, 1000)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			yamlContent := `
addr: ":7070"
log_level: "debug"
idempotency_ttl_hours: 48
observe_queue_size: 500
`
			tmpFile := filepath.Join(t.TempDir(), "pacelog.yaml")
			convey.So(os.WriteFile(tmpFile, []byte(yamlContent), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("PACELOG_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.IdempotencyTTLHours, convey.ShouldEqual, 48)
				convey.So(cfg.ObserveQueueSize, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When env vars layer over a file", func() {
			yamlContent := `
addr: ":7070"
`
			tmpFile := filepath.Join(t.TempDir(), "pacelog.yaml")
			convey.So(os.WriteFile(tmpFile, []byte(yamlContent), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("PACELOG_CONFIG", tmpFile)
			_ = os.Setenv("PACELOG_ADDR", ":6060")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			})
		})

		convey.Convey("When the firestore backend lacks a project", func() {
			_ = os.Setenv("PACELOG_STORE_BACKEND", "firestore")

			_, err := config.Load(ctx)

			convey.Convey("Then validation should reject it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an unknown backend is named", func() {
			_ = os.Setenv("PACELOG_STORE_BACKEND", "dynamo")

			_, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
