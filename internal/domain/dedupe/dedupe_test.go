package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pacelog/pacelog/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRecentCache(t *testing.T) {
	Convey("Given a new recent cache", t, func() {
		ctx := context.Background()

		Convey("When looking up and recording ids", func() {
			c := dedupe.NewRecentCache()

			Convey("And the id was never recorded", func() {
				seen := c.Seen(ctx, "evt-1")

				Convey("Then the lookup should miss without recording", func() {
					So(seen, ShouldBeFalse)
					So(c.Size(), ShouldEqual, 0)
				})
			})

			Convey("And the id was recorded", func() {
				c.Record(ctx, "evt-1")

				Convey("Then the lookup should hit", func() {
					So(c.Seen(ctx, "evt-1"), ShouldBeTrue)
					So(c.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the id is recorded twice", func() {
				c.Record(ctx, "evt-1")
				c.Record(ctx, "evt-1")

				Convey("Then the cache should not grow", func() {
					So(c.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When the cache is bounded", func() {
			c := dedupe.NewRecentCache(dedupe.WithMaxSize(3))
			for i := 0; i < 5; i++ {
				c.Record(ctx, fmt.Sprintf("evt-%d", i))
			}

			Convey("Then the oldest ids should be evicted", func() {
				So(c.Size(), ShouldEqual, 3)
				So(c.Seen(ctx, "evt-0"), ShouldBeFalse) // evicted
				So(c.Seen(ctx, "evt-4"), ShouldBeTrue)  // still present
			})
		})

		Convey("When recording concurrently", func() {
			c := dedupe.NewRecentCache()
			var wg sync.WaitGroup

			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.Record(ctx, "contended")
				}()
			}
			wg.Wait()

			Convey("Then the id should be recorded exactly once", func() {
				So(c.Seen(ctx, "contended"), ShouldBeTrue)
				So(c.Size(), ShouldEqual, 1)
			})
		})
	})
}
