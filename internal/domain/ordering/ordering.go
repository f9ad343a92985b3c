// Package ordering decides whether an event is safe to fold into a
// session aggregate or must be quarantined for later reconciliation.
package ordering

import (
	"time"

	"github.com/pacelog/pacelog/internal/domain/model"
)

// Decision is the outcome of evaluating an event against a session's
// sequence/time state.
type Decision struct {
	// OutOfOrder means the event must be stored but not aggregated.
	OutOfOrder bool
	// ClockDrift mirrors the upstream annotation on the event.
	ClockDrift bool

	// Watermark values to install on the session regardless of the flag.
	LastEventSequence *int64
	LastEventTime     *time.Time
}

// Evaluate runs the sequence and time regression checks and computes the
// new watermark. It never mutates its inputs.
func Evaluate(s *model.Session, ev *model.Event) Decision {
	d := Decision{ClockDrift: ev.ClockDriftDetected}

	// Sequence check: a sequence at or below the watermark is a replay
	// or late arrival.
	if ev.EventSequence != nil && s.LastEventSequence != nil &&
		*ev.EventSequence <= *s.LastEventSequence {
		d.OutOfOrder = true
	}

	// Time check: an event claiming a time before the last seen one.
	if s.LastEventTime != nil && ev.Timestamp.Before(*s.LastEventTime) {
		d.OutOfOrder = true
	}

	d.LastEventSequence = maxSequence(s.LastEventSequence, ev.EventSequence)
	d.LastEventTime = maxTime(s.LastEventTime, ev.Timestamp)

	return d
}

// Commit installs the decision on the session: the watermark always, the
// reconciliation flag when warranted. The reconciliation reason is
// first-writer-wins; a sequence/time regression outranks a simultaneous
// drift annotation.
func (d Decision) Commit(s *model.Session) {
	s.LastEventSequence = d.LastEventSequence
	s.LastEventTime = d.LastEventTime

	if d.OutOfOrder {
		s.RequiresReconciliation = true
		if s.ReconciliationReason == "" {
			s.ReconciliationReason = model.ReasonOutOfOrder
		}
	}

	if d.ClockDrift && s.ReconciliationReason == "" {
		s.RequiresReconciliation = true
		s.ReconciliationReason = model.ReasonClockDrift
	}
}

func maxSequence(prev, next *int64) *int64 {
	switch {
	case next == nil:
		return prev
	case prev == nil || *next > *prev:
		v := *next
		return &v
	default:
		return prev
	}
}

func maxTime(prev *time.Time, next time.Time) *time.Time {
	if prev != nil && prev.After(next) {
		return prev
	}
	v := next
	return &v
}
