package app_test

import (
	"context"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/riftfeed/riftfeed/internal/app"
	"github.com/riftfeed/riftfeed/internal/config"
	"github.com/riftfeed/riftfeed/internal/domain/event"
	"github.com/riftfeed/riftfeed/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func newTestService() *app.Service {
	// The live client URL points nowhere; the poller just backs off.
	return app.New(
		app.WithLiveBaseURL("https://127.0.0.1:1"),
		app.WithHeartbeatInterval(time.Hour),
		app.WithoutSession(),
	)
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := newTestService()

		Convey("When it has not started", func() {
			Convey("Then operations are refused", func() {
				_, err := svc.Subscribe()
				So(err, ShouldEqual, app.ErrNotStarted)
				So(svc.PausePolling(), ShouldEqual, app.ErrNotStarted)
				So(svc.SetPollInterval("idle", time.Second), ShouldEqual, app.ErrNotStarted)
			})
		})

		Convey("When it starts", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			defer svc.Stop()

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
			})

			Convey("Then control operations work", func() {
				So(svc.PausePolling(), ShouldBeNil)
				So(svc.Stats().PollPaused, ShouldBeTrue)
				So(svc.ResumePolling(), ShouldBeNil)
				So(svc.Stats().PollPaused, ShouldBeFalse)

				So(svc.SetPollInterval("combat", 100*time.Millisecond), ShouldBeNil)
				So(svc.SetPollInterval("turbo", time.Second), ShouldEqual, app.ErrUnknownRegime)
			})

			Convey("Then an injected event reaches a subscriber sequenced", func() {
				sub, err := svc.Subscribe(event.KindPhaseChange)
				So(err, ShouldBeNil)
				defer sub.Close()

				injected, err := event.New(event.KindPhaseChange, 42, event.PhasePayload{Phase: "Scripted"})
				So(err, ShouldBeNil)
				So(svc.InjectSynthetic(context.Background(), injected), ShouldBeNil)

				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				ev, missed, err := sub.Next(ctx)
				So(err, ShouldBeNil)
				So(missed, ShouldEqual, 0)
				So(ev.Seq, ShouldEqual, 1)
				So(ev.Payload.(event.PhasePayload).Phase, ShouldEqual, "Scripted")
			})

			Convey("Then stats expose the pipeline state", func() {
				stats := svc.Stats()
				So(stats.PollRegime, ShouldNotBeEmpty)
				So(stats.SessionState, ShouldEqual, "disconnected")
			})
		})

		Convey("When it stops", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			svc.Stop()

			Convey("Then stopping again is a no-op", func() {
				svc.Stop()
			})

			Convey("Then operations are refused again", func() {
				_, err := svc.Subscribe()
				So(err, ShouldEqual, app.ErrNotStarted)
			})
		})
	})
}

func TestFromConfig(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		cfg := config.New()

		Convey("When mapped onto service options", func() {
			svc := app.New(append(app.FromConfig(cfg), app.WithoutSession())...)
			So(svc.Start(context.Background()), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the service comes up with the configured bounds", func() {
				stats := svc.Stats()
				So(stats.PollRegime, ShouldEqual, "idle")
				So(stats.Bus.Subscribers, ShouldEqual, 0)
			})
		})
	})
}
