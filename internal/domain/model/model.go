// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// EventType classifies an ingest event within a session lifecycle.
type EventType string

// Event types.
const (
	EventStart  EventType = "start"
	EventUpdate EventType = "update"
	EventEnd    EventType = "end"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventStart, EventUpdate, EventEnd:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

// Session statuses.
const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

// ReconciliationReason records why a session was flagged for reconciliation.
type ReconciliationReason string

// Reconciliation reasons. First writer wins; never overwritten by a later,
// different cause.
const (
	ReasonClockDrift ReconciliationReason = "clock_drift"
	ReasonOutOfOrder ReconciliationReason = "out_of_order"
	ReasonManual     ReconciliationReason = "manual"
)

// EventMetrics carries the optional per-event measurements.
// Calories is a delta since the previous event; Distance is an absolute
// cumulative value; HeartRate is an instantaneous reading weighted by
// Duration seconds.
type EventMetrics struct {
	Calories  *float64 `json:"calories,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	HeartRate *float64 `json:"heartRate,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

// Event is the permanent, immutable record of one business event.
// Its existence under an eventId is the proof the event was applied
// exactly once.
type Event struct {
	EventID   string    `json:"eventId"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Type      EventType `json:"type"`

	Timestamp       time.Time `json:"timestamp"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
	ServerTimestamp time.Time `json:"serverTimestamp"`

	Metrics       *EventMetrics `json:"metrics,omitempty"`
	EventSequence *int64        `json:"eventSequence,omitempty"`

	OutOfOrder         bool `json:"outOfOrder"`
	ClockDriftDetected bool `json:"clockDriftDetected"`
}

// SessionMetrics is the running aggregate for a session.
type SessionMetrics struct {
	// TotalDuration is derived from the session timestamps on every
	// merge, never independently accumulated.
	TotalDuration  float64  `json:"totalDuration"`
	CaloriesBurned float64  `json:"caloriesBurned"`
	Distance       *float64 `json:"distance,omitempty"`
	// HeartRateAvg is a duration-weighted running mean;
	// HeartRateDataPoints is its accumulated weighting mass in seconds.
	HeartRateAvg        *float64 `json:"heartRateAvg,omitempty"`
	HeartRateDataPoints float64  `json:"heartRateDataPoints"`
}

// Session is the per-sessionId aggregate, mutated only inside a merge
// transaction.
type Session struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`

	StartTime         time.Time  `json:"startTime"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	LastUpdated       time.Time  `json:"lastUpdated"`
	LastEventTime     *time.Time `json:"lastEventTime,omitempty"`
	LastEventSequence *int64     `json:"lastEventSequence,omitempty"`

	// Version counts successful merges. Concurrency control comes from
	// store transaction serialization, not from this counter.
	Version int64 `json:"version"`

	Metrics SessionMetrics `json:"metrics"`
	Status  SessionStatus  `json:"status"`

	// RequiresReconciliation is sticky: once set it is never cleared here.
	RequiresReconciliation bool                 `json:"requiresReconciliation"`
	ReconciliationReason   ReconciliationReason `json:"reconciliationReason,omitempty"`
}

// NewSession constructs a session from its first start event.
func NewSession(ev *Event, now time.Time) *Session {
	return &Session{
		SessionID:   ev.SessionID,
		UserID:      ev.UserID,
		StartTime:   ev.Timestamp,
		LastUpdated: now,
		Status:      StatusActive,
	}
}

// IdempotencyStatus is the state of one idempotency claim.
type IdempotencyStatus string

// Idempotency record statuses.
const (
	IdempotencyProcessing IdempotencyStatus = "processing"
	IdempotencyCompleted  IdempotencyStatus = "completed"
	IdempotencyFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord tracks one claim window for a client-supplied key.
type IdempotencyRecord struct {
	Key      string          `json:"key"`
	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`

	Status      IdempotencyStatus `json:"status"`
	ErrorDetail string            `json:"errorDetail,omitempty"`

	CreatedAt           time.Time `json:"createdAt"`
	ProcessingStartedAt time.Time `json:"processingStartedAt"`
	ExpiresAt           time.Time `json:"expiresAt"`
}

// Expired reports whether the record should be treated as absent.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// CurrentMetrics is the read shape of a session aggregate returned to
// callers.
type CurrentMetrics struct {
	Duration     float64  `json:"duration"`
	Calories     float64  `json:"calories"`
	Distance     *float64 `json:"distance,omitempty"`
	AvgHeartRate *float64 `json:"avgHeartRate,omitempty"`
}

// CurrentMetricsOf projects the read shape from a session.
func CurrentMetricsOf(s *Session) CurrentMetrics {
	return CurrentMetrics{
		Duration:     s.Metrics.TotalDuration,
		Calories:     s.Metrics.CaloriesBurned,
		Distance:     s.Metrics.Distance,
		AvgHeartRate: s.Metrics.HeartRateAvg,
	}
}

// Merge outcome statuses.
const (
	MergeStatusSuccess          = "success"
	MergeStatusAlreadyProcessed = "already_processed"
)

// MergeResult is the outcome of folding one event into a session.
type MergeResult struct {
	Status                 string         `json:"status"`
	SessionID              string         `json:"sessionId"`
	SessionStatus          SessionStatus  `json:"sessionStatus,omitempty"`
	Metrics                CurrentMetrics `json:"currentMetrics"`
	RequiresReconciliation bool           `json:"requiresReconciliation"`
	OutOfOrder             bool           `json:"outOfOrder"`
	Warning                string         `json:"warning,omitempty"`
}
