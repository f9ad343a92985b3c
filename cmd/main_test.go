package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/pacelog/pacelog/internal/adapters/http/api"
	"github.com/pacelog/pacelog/internal/adapters/http/swagger"
	app "github.com/pacelog/pacelog/internal/app"
	"github.com/pacelog/pacelog/internal/config"
	"github.com/pacelog/pacelog/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("PACELOG_ADDR", ":8081")
			_ = os.Setenv("PACELOG_DEDUPE_CACHE_SIZE", "1000")
			defer func() {
				_ = os.Unsetenv("PACELOG_ADDR")
				_ = os.Unsetenv("PACELOG_DEDUPE_CACHE_SIZE")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
				convey.So(cfg.DedupeCacheSize, convey.ShouldEqual, 1000)
			})
		})

		convey.Convey("When testing service creation", func() {
			convey.Convey("Then service should be creatable with default options", func() {
				svc := app.New()
				convey.So(svc, convey.ShouldNotBeNil)
			})

			convey.Convey("And service should be creatable with custom options", func() {
				svc := app.New(
					app.WithConfig(config.New()),
				)
				convey.So(svc, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When wiring the full HTTP surface", func() {
			ctx := context.Background()
			svc := app.New(app.WithConfig(config.New()))
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			convey.Reset(svc.Stop)

			mux := http.NewServeMux()
			swagger.Register(ctx, mux)
			apiServer := api.NewServer(svc, svc, api.NewValidator())
			apiServer.Register(ctx, mux)

			srv := &http.Server{
				Addr:              ":0",
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			convey.So(srv, convey.ShouldNotBeNil)

			convey.Convey("Then the health endpoint should answer", func() {
				req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, req)
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("And the docs endpoint should answer", func() {
				req := httptest.NewRequest(http.MethodGet, "/api-docs", nil)
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, req)
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}
