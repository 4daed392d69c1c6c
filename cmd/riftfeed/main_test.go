package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/riftfeed/riftfeed/internal/adapters/http/api"
	"github.com/riftfeed/riftfeed/internal/app"
	"github.com/riftfeed/riftfeed/internal/config"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the daemon entrypoint", t, func() {
		convey.Convey("When loading configuration from the environment", func() {
			_ = os.Setenv("RIFTFEED_ADDR", "127.0.0.1:19184")
			_ = os.Setenv("RIFTFEED_QUEUE_SIZE", "1000")
			defer func() {
				_ = os.Unsetenv("RIFTFEED_ADDR")
				_ = os.Unsetenv("RIFTFEED_QUEUE_SIZE")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, "127.0.0.1:19184")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
			})
		})

		convey.Convey("When building the service from configuration", func() {
			cfg := config.New()
			svc := app.New(append(app.FromConfig(cfg), app.WithoutSession())...)
			convey.So(svc, convey.ShouldNotBeNil)

			convey.Convey("Then it should start and expose its API", func() {
				convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
				defer svc.Stop()

				mux := http.NewServeMux()
				api.NewServer(svc).Register(mux)
				convey.So(mux, convey.ShouldNotBeNil)

				stats := svc.Stats()
				convey.So(stats.PollRegime, convey.ShouldEqual, "idle")
			})
		})

		convey.Convey("When syncing service metrics", func() {
			svc := app.New(app.WithoutSession())
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			convey.Convey("Then the updater should stop with its context", func() {
				done := make(chan struct{})
				go func() {
					syncServiceMetrics(ctx, svc)
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("metrics updater did not stop")
				}
			})
		})
	})
}
