package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/riftfeed/riftfeed/internal/config"
)

func TestDefaults(t *testing.T) {
	Convey("Given default configuration", t, func() {
		cfg := config.New()

		Convey("Then the boundary stays on loopback", func() {
			So(cfg.Addr, ShouldEqual, "127.0.0.1:9184")
			So(cfg.LiveBaseURL, ShouldEqual, "https://127.0.0.1:2999")
		})

		Convey("Then poll intervals widen from combat to idle", func() {
			So(cfg.PollIntervalCombatMS, ShouldEqual, 150)
			So(cfg.PollIntervalNormalMS, ShouldEqual, 750)
			So(cfg.PollIntervalIdleMS, ShouldEqual, 1500)
		})

		Convey("Then stream bounds have sane defaults", func() {
			So(cfg.QueueSize, ShouldEqual, 4096)
			So(cfg.DedupeWindow, ShouldEqual, 2048)
			So(cfg.BusCapacity, ShouldEqual, 1024)
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given layered configuration sources", t, func() {
		Convey("When nothing is set", func() {
			cfg, err := config.Load(context.Background())

			Convey("Then defaults come through", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, "127.0.0.1:9184")
			})
		})

		Convey("When a YAML file is provided", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			contents := "addr: 127.0.0.1:7777\npoll_interval_combat_ms: 100\n"
			So(os.WriteFile(path, []byte(contents), 0o600), ShouldBeNil)
			t.Setenv("RIFTFEED_CONFIG", path)

			cfg, err := config.Load(context.Background())

			Convey("Then file values override defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, "127.0.0.1:7777")
				So(cfg.PollIntervalCombatMS, ShouldEqual, 100)
				So(cfg.PollIntervalNormalMS, ShouldEqual, 750)
			})

			Convey("And env values override the file", func() {
				t.Setenv("RIFTFEED_ADDR", "127.0.0.1:8888")
				cfg, err := config.Load(context.Background())
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, "127.0.0.1:8888")
			})
		})

		Convey("When the file path is bogus", func() {
			t.Setenv("RIFTFEED_CONFIG", "/does/not/exist.yaml")
			_, err := config.Load(context.Background())
			So(err, ShouldNotBeNil)
		})

		Convey("When the intervals are inverted", func() {
			t.Setenv("RIFTFEED_POLL_INTERVAL_COMBAT_MS", "2000")
			_, err := config.Load(context.Background())

			Convey("Then validation rejects the config", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the address is cleared", func() {
			t.Setenv("RIFTFEED_ADDR", "")
			_, err := config.Load(context.Background())

			Convey("Then validation rejects the config", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
