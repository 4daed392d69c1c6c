package snapshot

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func testIntervals() Intervals {
	return Intervals{
		Combat: 150 * time.Millisecond,
		Normal: 750 * time.Millisecond,
		Idle:   1500 * time.Millisecond,
	}
}

func TestRegimeState(t *testing.T) {
	Convey("Given a regime state with a fake clock", t, func() {
		now := time.Unix(1000, 0)
		clock := func() time.Time { return now }
		state := newRegimeState(testIntervals(), 5*time.Second, 20*time.Second, clock)

		Convey("Then it starts idle", func() {
			So(state.current(), ShouldEqual, RegimeIdle)
		})

		Convey("When a poll cycle observes activity", func() {
			interval := state.onPoll(true)

			Convey("Then the regime tightens to combat immediately", func() {
				So(state.current(), ShouldEqual, RegimeCombat)
				So(interval, ShouldEqual, 150*time.Millisecond)
			})

			Convey("And quiet polls inside the cooldown keep it in combat", func() {
				now = now.Add(4 * time.Second)
				interval := state.onPoll(false)
				So(state.current(), ShouldEqual, RegimeCombat)
				So(interval, ShouldEqual, 150*time.Millisecond)
			})

			Convey("And sustained quiet steps it down one regime at a time", func() {
				now = now.Add(5 * time.Second)
				So(state.onPoll(false), ShouldEqual, 750*time.Millisecond)
				So(state.current(), ShouldEqual, RegimeNormal)

				now = now.Add(19 * time.Second)
				So(state.onPoll(false), ShouldEqual, 750*time.Millisecond)
				So(state.current(), ShouldEqual, RegimeNormal)

				now = now.Add(time.Second)
				So(state.onPoll(false), ShouldEqual, 1500*time.Millisecond)
				So(state.current(), ShouldEqual, RegimeIdle)
			})
		})

		Convey("When a poll cycle errors", func() {
			state.onPoll(true)
			state.onError()

			Convey("Then the regime drops straight to idle", func() {
				So(state.current(), ShouldEqual, RegimeIdle)
			})
		})

		Convey("When an interval is overridden at runtime", func() {
			state.setInterval(RegimeIdle, 3*time.Second)

			Convey("Then later polls in that regime use the override", func() {
				So(state.onPoll(false), ShouldEqual, 3*time.Second)
			})
		})
	})
}

func TestParseRegime(t *testing.T) {
	Convey("Given regime names from the control surface", t, func() {
		Convey("Then known names parse", func() {
			for _, name := range []string{"combat", "normal", "idle"} {
				regime, ok := ParseRegime(name)
				So(ok, ShouldBeTrue)
				So(string(regime), ShouldEqual, name)
			}
		})

		Convey("Then unknown names are rejected", func() {
			_, ok := ParseRegime("turbo")
			So(ok, ShouldBeFalse)
		})
	})
}
