package testevents

import "time"

// Config holds configuration for the ingest test.
type Config struct {
	BaseURL           string        // Base URL of the service
	NumSessions       int           // Number of session lifecycles to generate
	UpdatesPerSession int           // Update events per session between start and end
	Workers           int           // Number of concurrent workers
	Timeout           time.Duration // HTTP request timeout
	OutputFile        string        // Output file for generated submissions
	LogFile           string        // Log file for test output
	Verbose           bool          // Enable verbose logging
}

// EventRequest mirrors the POST /v1/events schema.
type EventRequest struct {
	IdempotencyKey string        `json:"idempotencyKey"`
	SessionID      string        `json:"sessionId"`
	UserID         string        `json:"userId"`
	EventID        string        `json:"eventId"`
	EventType      string        `json:"eventType"`
	Timestamp      string        `json:"timestamp"`
	Metrics        *EventMetrics `json:"metrics,omitempty"`
	EventSequence  *int64        `json:"eventSequence,omitempty"`
}

// EventMetrics mirrors the metrics block of an event submission.
type EventMetrics struct {
	Calories  *float64 `json:"calories,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	HeartRate *float64 `json:"heartRate,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

// MergeResponse mirrors the ingest response body.
type MergeResponse struct {
	Status                 string `json:"status"`
	SessionID              string `json:"sessionId"`
	SessionStatus          string `json:"sessionStatus"`
	RequiresReconciliation bool   `json:"requiresReconciliation"`
	OutOfOrder             bool   `json:"outOfOrder"`
	Warning                string `json:"warning,omitempty"`
}

// SessionView mirrors the GET /v1/sessions/{id} response body.
type SessionView struct {
	SessionID              string `json:"sessionId"`
	UserID                 string `json:"userId"`
	Status                 string `json:"status"`
	Version                int64  `json:"version"`
	RequiresReconciliation bool   `json:"requiresReconciliation"`
	ReconciliationReason   string `json:"reconciliationReason"`
	Metrics                struct {
		TotalDuration       float64  `json:"totalDuration"`
		CaloriesBurned      float64  `json:"caloriesBurned"`
		Distance            *float64 `json:"distance"`
		HeartRateAvg        *float64 `json:"heartRateAvg"`
		HeartRateDataPoints int64    `json:"heartRateDataPoints"`
	} `json:"metrics"`
}

// SessionPlan is one generated lifecycle plus the aggregates the service
// is expected to end up with.
type SessionPlan struct {
	SessionID   string
	UserID      string
	Submissions []Submission

	ExpectedCalories     float64
	ExpectedDistance     float64
	ExpectShuffled       bool
	ExpectedFinalStatus  string
	ExpectedUniqueEvents int
}

// Submission is one HTTP attempt: an event plus its idempotency key.
// Retries reuse the key; duplicates reuse the event id under a new key.
type Submission struct {
	Key     string
	Event   EventRequest
	IsRetry bool
	IsDup   bool
}

// Stats holds test statistics.
type Stats struct {
	SessionsGenerated int
	EventsGenerated   int
	EventsSubmitted   int
	EventsSuccessful  int
	EventsDuplicate   int
	EventsConflict    int
	EventsFailed      int
	SessionsVerified  int
	SessionsMismatch  int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
