// Package aggregate folds event metrics into a session's running
// aggregate. All functions are pure over their inputs; callers only
// invoke them for events accepted by the ordering check.
package aggregate

import (
	"time"

	"github.com/pacelog/pacelog/internal/domain/model"
)

// Heart-rate readings outside (0, maxHeartRate] are dropped. Validation
// upstream should already enforce this bound.
const maxHeartRate = 250

// minHeartRateWeight is the floor for a reading's weighting, in seconds.
const minHeartRateWeight = 1.0

// Apply folds ev's metrics into s and recomputes the derived duration.
//
// Metric rules:
//   - calories: delta semantic, summed when present and non-negative
//   - distance: absolute semantic, running maximum
//   - heart rate: duration-weighted running mean
//
// Start events may only pull StartTime earlier; end events may only push
// EndTime later and complete the session.
func Apply(s *model.Session, ev *model.Event, now time.Time) {
	applyMarkers(s, ev)
	applyMetrics(s, ev)
	s.Metrics.TotalDuration = derivedDuration(s, now)
}

func applyMarkers(s *model.Session, ev *model.Event) {
	switch ev.Type {
	case model.EventStart:
		if ev.Timestamp.Before(s.StartTime) {
			s.StartTime = ev.Timestamp
		}
	case model.EventEnd:
		if s.EndTime == nil || ev.Timestamp.After(*s.EndTime) {
			end := ev.Timestamp
			s.EndTime = &end
		}
		s.Status = model.StatusCompleted
	case model.EventUpdate:
		// no marker effect
	}
}

func applyMetrics(s *model.Session, ev *model.Event) {
	m := ev.Metrics
	if m == nil {
		return
	}

	if m.Calories != nil && *m.Calories >= 0 {
		s.Metrics.CaloriesBurned += *m.Calories
	}

	if m.Distance != nil && *m.Distance >= 0 {
		// GPS re-smoothing can revise a reported absolute distance
		// downward; never let the aggregate regress.
		if s.Metrics.Distance == nil || *m.Distance > *s.Metrics.Distance {
			d := *m.Distance
			s.Metrics.Distance = &d
		}
	}

	if m.HeartRate != nil {
		applyHeartRate(s, *m.HeartRate, m.Duration)
	}
}

// applyHeartRate folds one instantaneous reading into the weighted mean.
// The reading's weight is its reported duration in seconds, floored at one.
func applyHeartRate(s *model.Session, hr float64, reported *float64) {
	if hr <= 0 || hr > maxHeartRate {
		return
	}

	weight := minHeartRateWeight
	if reported != nil && *reported > weight {
		weight = *reported
	}

	prevWeight := s.Metrics.HeartRateDataPoints
	prevAvg := hr
	if s.Metrics.HeartRateAvg != nil {
		prevAvg = *s.Metrics.HeartRateAvg
	}

	avg := (prevAvg*prevWeight + hr*weight) / (prevWeight + weight)
	s.Metrics.HeartRateAvg = &avg
	s.Metrics.HeartRateDataPoints = prevWeight + weight
}

// derivedDuration computes (endTime ?? now) - startTime in seconds.
// The stored duration is always re-derived from the timestamps so the two
// can never drift apart.
func derivedDuration(s *model.Session, now time.Time) float64 {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime).Seconds()
}
