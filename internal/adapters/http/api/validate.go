package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/pacelog/pacelog/internal/domain/model"
	"github.com/pacelog/pacelog/pkg/clock"
)

// Validation bound constants.
const (
	maxHeartRate = 250

	defaultMaxEventAge   = 24 * time.Hour
	defaultDriftWindow   = 5 * time.Minute
	defaultMaxFutureSkew = 10 * time.Minute
)

// eventRequest mirrors the OpenAPI schema for POST /v1/events.
type eventRequest struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	SessionID      string          `json:"sessionId"`
	UserID         string          `json:"userId"`
	EventID        string          `json:"eventId"`
	EventType      string          `json:"eventType"`
	Timestamp      string          `json:"timestamp"`
	Metrics        *requestMetrics `json:"metrics,omitempty"`
	EventSequence  *int64          `json:"eventSequence,omitempty"`
}

type requestMetrics struct {
	Calories  *float64 `json:"calories,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	HeartRate *float64 `json:"heartRate,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

// Validator checks event submissions and normalizes them into the
// domain shape, annotating suspected client clock drift on the way.
type Validator struct {
	clk           clock.Clock
	maxEventAge   time.Duration
	driftWindow   time.Duration
	maxFutureSkew time.Duration
}

// ValidatorOption applies a configuration option to the Validator.
type ValidatorOption func(*Validator)

// WithValidatorClock sets the time source for age and drift checks.
func WithValidatorClock(clk clock.Clock) ValidatorOption {
	return func(v *Validator) {
		if clk != nil {
			v.clk = clk
		}
	}
}

// WithMaxEventAge sets how far in the past a timestamp may claim to be.
func WithMaxEventAge(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.maxEventAge = d
		}
	}
}

// WithDriftWindow sets the tolerated gap between client and server
// clocks before an event is flagged as drifted.
func WithDriftWindow(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.driftWindow = d
		}
	}
}

// WithMaxFutureSkew sets how far in the future a timestamp may claim
// to be before it is rejected outright.
func WithMaxFutureSkew(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.maxFutureSkew = d
		}
	}
}

// NewValidator creates a validator with configuration options.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		clk:           clock.Real(),
		maxEventAge:   defaultMaxEventAge,
		driftWindow:   defaultDriftWindow,
		maxFutureSkew: defaultMaxFutureSkew,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Normalize validates the request and converts it into a domain event.
// The returned error message is safe to surface to the caller.
func (v *Validator) Normalize(req *eventRequest) (*model.Event, error) {
	switch {
	case strings.TrimSpace(req.IdempotencyKey) == "":
		return nil, fmt.Errorf("missing idempotencyKey")
	case strings.TrimSpace(req.SessionID) == "":
		return nil, fmt.Errorf("missing sessionId")
	case strings.TrimSpace(req.UserID) == "":
		return nil, fmt.Errorf("missing userId")
	case strings.TrimSpace(req.EventID) == "":
		return nil, fmt.Errorf("missing eventId")
	case strings.TrimSpace(req.Timestamp) == "":
		return nil, fmt.Errorf("missing timestamp")
	}

	evType := model.EventType(req.EventType)
	if !evType.Valid() {
		return nil, fmt.Errorf("invalid eventType %q", req.EventType)
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp; must be RFC3339")
	}
	ts = ts.UTC()

	now := v.clk.Now()
	if now.Sub(ts) > v.maxEventAge {
		return nil, fmt.Errorf("timestamp is older than the accepted window")
	}
	if ts.Sub(now) > v.maxFutureSkew {
		return nil, fmt.Errorf("timestamp is too far in the future")
	}

	metrics, err := normalizeMetrics(req.Metrics)
	if err != nil {
		return nil, err
	}

	if req.EventSequence != nil && *req.EventSequence < 0 {
		return nil, fmt.Errorf("eventSequence must not be negative")
	}

	ev := &model.Event{
		EventID:         req.EventID,
		SessionID:       req.SessionID,
		UserID:          req.UserID,
		Type:            evType,
		Timestamp:       ts,
		ClientTimestamp: ts,
		Metrics:         metrics,
		EventSequence:   req.EventSequence,
	}

	// Drift inside the accept bounds is not an error; it only marks the
	// event so the merge can flag the session for reconciliation.
	drift := now.Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > v.driftWindow {
		ev.ClockDriftDetected = true
	}

	return ev, nil
}

func normalizeMetrics(m *requestMetrics) (*model.EventMetrics, error) {
	if m == nil {
		return nil, nil
	}
	if m.Calories != nil && *m.Calories < 0 {
		return nil, fmt.Errorf("metrics.calories must not be negative")
	}
	if m.Distance != nil && *m.Distance < 0 {
		return nil, fmt.Errorf("metrics.distance must not be negative")
	}
	if m.HeartRate != nil && (*m.HeartRate <= 0 || *m.HeartRate > maxHeartRate) {
		return nil, fmt.Errorf("metrics.heartRate must be in (0, %d]", maxHeartRate)
	}
	if m.Duration != nil && *m.Duration < 0 {
		return nil, fmt.Errorf("metrics.duration must not be negative")
	}
	return &model.EventMetrics{
		Calories:  m.Calories,
		Distance:  m.Distance,
		HeartRate: m.HeartRate,
		Duration:  m.Duration,
	}, nil
}
