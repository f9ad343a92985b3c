package testevents

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pacelog/pacelog/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
)

// Constants for metric generation ranges.
const (
	caloriesPerUpdateMin   = 5.0
	caloriesPerUpdateRange = 20.0
	distancePerUpdateMin   = 50.0
	distancePerUpdateRange = 300.0
	heartRateMin           = 90.0
	heartRateRange         = 90.0
	updateIntervalSeconds  = 30
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int64) *int64     { return &v }

// generateSessions builds full session lifecycles with fault injection:
// some submissions are repeated with the same key (idempotent retry),
// some event ids reappear under a fresh key (business duplicate), and
// every Nth session has two updates swapped (out-of-order burst).
func generateSessions(ctx context.Context, config *Config, stats *Stats) ([]SessionPlan, error) {
	logger.Get().Info(ctx, "generating session lifecycles",
		logger.Int("sessions", config.NumSessions),
		logger.Int("updatesPerSession", config.UpdatesPerSession),
	)

	plans := make([]SessionPlan, 0, config.NumSessions)
	submissionCount := 0

	for i := 0; i < config.NumSessions; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		plan := generateSingleSession(i, config.UpdatesPerSession, &submissionCount)
		stats.EventsGenerated += plan.ExpectedUniqueEvents
		plans = append(plans, plan)
	}

	stats.SessionsGenerated = len(plans)
	logger.Get().Info(ctx, "generated sessions successfully",
		logger.Int("sessions", len(plans)),
		logger.Int("events", stats.EventsGenerated),
	)
	return plans, nil
}

// generateSingleSession builds one start/updates/end lifecycle.
func generateSingleSession(index, updates int, submissionCount *int) SessionPlan {
	sessionID := uuid.New().String()
	userID := uuid.New().String()
	base := time.Now().UTC().Add(-time.Duration(updates+2) * updateIntervalSeconds * time.Second)

	plan := SessionPlan{
		SessionID:           sessionID,
		UserID:              userID,
		ExpectShuffled:      index%shuffleEverySessions == shuffleEverySessions-1,
		ExpectedFinalStatus: "completed",
	}

	newSubmission := func(ev EventRequest) Submission {
		*submissionCount++
		ev.IdempotencyKey = uuid.New().String()
		return Submission{Key: ev.IdempotencyKey, Event: ev}
	}

	makeEvent := func(evType string, at time.Time, m *EventMetrics, seq *int64) EventRequest {
		return EventRequest{
			SessionID:     sessionID,
			UserID:        userID,
			EventID:       uuid.New().String(),
			EventType:     evType,
			Timestamp:     at.Format(time.RFC3339),
			Metrics:       m,
			EventSequence: seq,
		}
	}

	subs := []Submission{newSubmission(makeEvent("start", base, nil, ptrI(0)))}

	cumulativeDistance := 0.0
	for u := 1; u <= updates; u++ {
		at := base.Add(time.Duration(u) * updateIntervalSeconds * time.Second)
		calories := caloriesPerUpdateMin + getRandomFloat()*caloriesPerUpdateRange
		cumulativeDistance += distancePerUpdateMin + getRandomFloat()*distancePerUpdateRange
		hr := heartRateMin + getRandomFloat()*heartRateRange

		plan.ExpectedCalories += calories
		plan.ExpectedDistance = cumulativeDistance

		subs = append(subs, newSubmission(makeEvent("update", at, &EventMetrics{
			Calories:  ptrF(calories),
			Distance:  ptrF(cumulativeDistance),
			HeartRate: ptrF(hr),
			Duration:  ptrF(updateIntervalSeconds),
		}, ptrI(int64(u)))))
	}

	endAt := base.Add(time.Duration(updates+1) * updateIntervalSeconds * time.Second)
	subs = append(subs, newSubmission(makeEvent("end", endAt, nil, ptrI(int64(updates+1)))))

	plan.ExpectedUniqueEvents = len(subs)

	// Out-of-order burst: swap two middle updates. The later sequence
	// reaches the service first, so the earlier one arrives stale and
	// its metrics are quarantined instead of aggregated.
	if plan.ExpectShuffled && updates >= 2 {
		a, b := 1, 2
		subs[a], subs[b] = subs[b], subs[a]
		stale := subs[b].Event.Metrics
		if stale != nil && stale.Calories != nil {
			plan.ExpectedCalories -= *stale.Calories
		}
	}

	// Fault injection on the flat submission stream.
	withFaults := make([]Submission, 0, len(subs)+2)
	for _, sub := range subs {
		withFaults = append(withFaults, sub)

		if *submissionCount%retryEverySubmissions == 0 {
			retry := sub
			retry.IsRetry = true
			withFaults = append(withFaults, retry)
		}
		if *submissionCount%dupEverySubmissions == 0 {
			dup := sub
			dup.Key = uuid.New().String()
			dup.Event.IdempotencyKey = dup.Key
			dup.IsDup = true
			withFaults = append(withFaults, dup)
		}
	}

	plan.Submissions = withFaults
	return plan
}
