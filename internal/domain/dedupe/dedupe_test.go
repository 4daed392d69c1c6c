package dedupe_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/riftfeed/riftfeed/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSlidingWindow(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new sliding window", t, func() {
		w := dedupe.NewWindow()

		Convey("Then it should start empty", func() {
			So(w.Size(), ShouldEqual, 0)
		})

		Convey("When recording a new fingerprint", func() {
			seen := w.SeenAndRecord(ctx, "kill|order:2:Ana")

			Convey("Then it should be newly recorded", func() {
				So(seen, ShouldBeFalse)
				So(w.Size(), ShouldEqual, 1)
			})

			Convey("And a repeat within the window should be suppressed", func() {
				So(w.SeenAndRecord(ctx, "kill|order:2:Ana"), ShouldBeTrue)
				So(w.Size(), ShouldEqual, 1)
			})
		})

		Convey("When recording distinct fingerprints", func() {
			for i := 0; i < 5; i++ {
				So(w.SeenAndRecord(ctx, fmt.Sprintf("fp-%d", i)), ShouldBeFalse)
			}

			Convey("Then all should be retained", func() {
				So(w.Size(), ShouldEqual, 5)
			})
		})
	})

	Convey("Given a window bounded by count", t, func() {
		w := dedupe.NewWindow(dedupe.WithMaxSize(3))

		Convey("When capacity pressure evicts the oldest entry", func() {
			for i := 0; i < 4; i++ {
				w.SeenAndRecord(ctx, fmt.Sprintf("fp-%d", i))
			}

			Convey("Then the evicted fingerprint is accepted again and the newest stays suppressed", func() {
				So(w.Size(), ShouldEqual, 3)
				So(w.SeenAndRecord(ctx, "fp-3"), ShouldBeTrue)
				// fp-0 fell out of the window, so it no longer counts
				// as a duplicate.
				So(w.SeenAndRecord(ctx, "fp-0"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a window bounded by age", t, func() {
		now := time.Unix(1000, 0)
		clock := func() time.Time { return now }
		w := dedupe.NewWindow(
			dedupe.WithTTL(2*time.Second),
			dedupe.WithClock(clock),
		)

		w.SeenAndRecord(ctx, "gold|order:2:Ana|800")

		Convey("When the entry is younger than the TTL", func() {
			now = now.Add(1 * time.Second)

			Convey("Then the duplicate is suppressed", func() {
				So(w.SeenAndRecord(ctx, "gold|order:2:Ana|800"), ShouldBeTrue)
			})
		})

		Convey("When the entry has aged past the TTL", func() {
			now = now.Add(3 * time.Second)

			Convey("Then the fingerprint is accepted again", func() {
				So(w.SeenAndRecord(ctx, "gold|order:2:Ana|800"), ShouldBeFalse)
				So(w.Size(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a fingerprint re-recorded after expiry", t, func() {
		now := time.Unix(2000, 0)
		w := dedupe.NewWindow(
			dedupe.WithMaxSize(2),
			dedupe.WithTTL(time.Second),
			dedupe.WithClock(func() time.Time { return now }),
		)

		w.SeenAndRecord(ctx, "fp-a")
		now = now.Add(2 * time.Second)
		So(w.SeenAndRecord(ctx, "fp-a"), ShouldBeFalse)

		Convey("Then the fresh record owns its own lifetime", func() {
			So(w.SeenAndRecord(ctx, "fp-a"), ShouldBeTrue)
			So(w.Size(), ShouldEqual, 1)
		})
	})
}
