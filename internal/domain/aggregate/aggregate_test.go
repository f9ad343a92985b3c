package aggregate_test

import (
	"testing"
	"time"

	"github.com/pacelog/pacelog/internal/domain/aggregate"
	"github.com/pacelog/pacelog/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func f(v float64) *float64 { return &v }

func baseSession(start time.Time) *model.Session {
	return &model.Session{
		SessionID: "sess-1",
		UserID:    "user-1",
		StartTime: start,
		Status:    model.StatusActive,
	}
}

func TestApplyCalories(t *testing.T) {
	Convey("Given an active session", t, func() {
		start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		now := start.Add(10 * time.Minute)
		s := baseSession(start)

		Convey("When applying a sequence of calorie deltas", func() {
			for _, c := range []float64{12.5, 7.5, 30} {
				ev := &model.Event{Type: model.EventUpdate, Timestamp: now, Metrics: &model.EventMetrics{Calories: f(c)}}
				aggregate.Apply(s, ev, now)
			}

			Convey("Then calories should be the sum of the deltas", func() {
				So(s.Metrics.CaloriesBurned, ShouldAlmostEqual, 50.0)
			})
		})

		Convey("When applying a negative calorie value", func() {
			ev := &model.Event{Type: model.EventUpdate, Timestamp: now, Metrics: &model.EventMetrics{Calories: f(-5)}}
			aggregate.Apply(s, ev, now)

			Convey("Then it should be ignored", func() {
				So(s.Metrics.CaloriesBurned, ShouldEqual, 0)
			})
		})
	})
}

func TestApplyDistance(t *testing.T) {
	Convey("Given an active session", t, func() {
		start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		now := start.Add(10 * time.Minute)
		s := baseSession(start)

		Convey("When distances arrive including a downward revision", func() {
			for _, d := range []float64{1000, 2500, 2300, 2400} {
				ev := &model.Event{Type: model.EventUpdate, Timestamp: now, Metrics: &model.EventMetrics{Distance: f(d)}}
				aggregate.Apply(s, ev, now)
			}

			Convey("Then the stored distance should be the running maximum", func() {
				So(s.Metrics.Distance, ShouldNotBeNil)
				So(*s.Metrics.Distance, ShouldEqual, 2500)
			})
		})

		Convey("When no distance has been reported", func() {
			ev := &model.Event{Type: model.EventUpdate, Timestamp: now, Metrics: &model.EventMetrics{Calories: f(1)}}
			aggregate.Apply(s, ev, now)

			Convey("Then distance should stay unset", func() {
				So(s.Metrics.Distance, ShouldBeNil)
			})
		})
	})
}

func TestApplyHeartRate(t *testing.T) {
	Convey("Given an active session", t, func() {
		start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		now := start.Add(10 * time.Minute)
		s := baseSession(start)

		Convey("When two weighted readings are applied", func() {
			ev1 := &model.Event{Type: model.EventUpdate, Timestamp: now, Metrics: &model.EventMetrics{HeartRate: f(120), Duration: f(30)}}
			ev2 := &model.Event{Type: model.EventUpdate, Timestamp: now, Metrics: &model.EventMetrics{HeartRate: f(180), Duration: f(10)}}
			aggregate.Apply(s, ev1, now)
			aggregate.Apply(s, ev2, now)

			Convey("Then the average should be duration-weighted", func() {
				So(s.Metrics.HeartRateAvg, ShouldNotBeNil)
				So(*s.Metrics.HeartRateAvg, ShouldAlmostEqual, (120*30+180*10)/40.0, 1e-9)
				So(s.Metrics.HeartRateDataPoints, ShouldEqual, 40)
			})
		})

		Convey("When a reading has no duration", func() {
			ev := &model.Event{Type: model.EventUpdate, Timestamp: now, Metrics: &model.EventMetrics{HeartRate: f(140)}}
			aggregate.Apply(s, ev, now)

			Convey("Then the weight should floor at one second", func() {
				So(*s.Metrics.HeartRateAvg, ShouldAlmostEqual, 140)
				So(s.Metrics.HeartRateDataPoints, ShouldEqual, 1)
			})
		})

		Convey("When readings are out of physiological bounds", func() {
			for _, hr := range []float64{0, -10, 251, 400} {
				ev := &model.Event{Type: model.EventUpdate, Timestamp: now, Metrics: &model.EventMetrics{HeartRate: f(hr), Duration: f(5)}}
				aggregate.Apply(s, ev, now)
			}

			Convey("Then they should be dropped silently", func() {
				So(s.Metrics.HeartRateAvg, ShouldBeNil)
				So(s.Metrics.HeartRateDataPoints, ShouldEqual, 0)
			})
		})
	})
}

func TestApplyMarkers(t *testing.T) {
	Convey("Given an active session", t, func() {
		start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		now := start.Add(30 * time.Minute)
		s := baseSession(start)

		Convey("When a start event claims an earlier start", func() {
			earlier := start.Add(-2 * time.Minute)
			ev := &model.Event{Type: model.EventStart, Timestamp: earlier}
			aggregate.Apply(s, ev, now)

			Convey("Then the start time should be pulled earlier", func() {
				So(s.StartTime, ShouldEqual, earlier)
			})
		})

		Convey("When a start event claims a later start", func() {
			ev := &model.Event{Type: model.EventStart, Timestamp: start.Add(time.Minute)}
			aggregate.Apply(s, ev, now)

			Convey("Then the start time should not move", func() {
				So(s.StartTime, ShouldEqual, start)
			})
		})

		Convey("When an end event arrives", func() {
			end := start.Add(20 * time.Minute)
			ev := &model.Event{Type: model.EventEnd, Timestamp: end}
			aggregate.Apply(s, ev, now)

			Convey("Then the session should complete with that end time", func() {
				So(s.Status, ShouldEqual, model.StatusCompleted)
				So(s.EndTime, ShouldNotBeNil)
				So(*s.EndTime, ShouldEqual, end)
			})

			Convey("And an earlier end must not pull it back", func() {
				ev2 := &model.Event{Type: model.EventEnd, Timestamp: end.Add(-5 * time.Minute)}
				aggregate.Apply(s, ev2, now)
				So(*s.EndTime, ShouldEqual, end)
			})

			Convey("And duration should derive from start and end", func() {
				So(s.Metrics.TotalDuration, ShouldEqual, (20 * time.Minute).Seconds())
			})
		})

		Convey("When the session is still open", func() {
			ev := &model.Event{Type: model.EventUpdate, Timestamp: now}
			aggregate.Apply(s, ev, now)

			Convey("Then duration should derive from start to now", func() {
				So(s.Metrics.TotalDuration, ShouldEqual, (30 * time.Minute).Seconds())
			})
		})
	})
}
