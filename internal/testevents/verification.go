package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
)

// Comparison tolerance for floating point aggregates.
const caloriesTolerance = 0.01

// verifySessions reads every session back and checks the aggregates the
// service must have converged to regardless of retries and duplicates.
func verifySessions(ctx context.Context, config *Config, plans []SessionPlan, stats *Stats) error {
	log.Println("verifying session aggregates...")

	client := newHTTPClient(config.Timeout)

	var verified, mismatched int64
	planChan := make(chan *SessionPlan, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for plan := range planChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if err := verifySingleSession(ctx, client, config.BaseURL, plan); err != nil {
					atomic.AddInt64(&mismatched, 1)
					log.Printf("session %s mismatch: %v", plan.SessionID, err)
					continue
				}
				atomic.AddInt64(&verified, 1)
			}
		}()
	}

	go func() {
		defer close(planChan)
		for i := range plans {
			select {
			case <-ctx.Done():
				return
			case planChan <- &plans[i]:
			}
		}
	}()

	wg.Wait()

	stats.SessionsVerified = int(atomic.LoadInt64(&verified))
	stats.SessionsMismatch = int(atomic.LoadInt64(&mismatched))

	if stats.SessionsMismatch > 0 {
		return fmt.Errorf("%d of %d sessions failed verification", stats.SessionsMismatch, len(plans))
	}
	log.Printf("all %d sessions verified", stats.SessionsVerified)
	return nil
}

func verifySingleSession(ctx context.Context, client *HTTPClient, baseURL string, plan *SessionPlan) error {
	resp, err := client.Get(ctx, baseURL+"/v1/sessions/"+plan.SessionID)
	if err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var view SessionView
	if err := json.Unmarshal(body, &view); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}

	if view.Status != plan.ExpectedFinalStatus {
		return fmt.Errorf("status %q, want %q", view.Status, plan.ExpectedFinalStatus)
	}

	// Retries and duplicate eventIds must not inflate the version: only
	// distinct events count merges, minus any quarantined stale ones.
	if view.Version > int64(plan.ExpectedUniqueEvents) {
		return fmt.Errorf("version %d exceeds unique event count %d", view.Version, plan.ExpectedUniqueEvents)
	}

	if math.Abs(view.Metrics.CaloriesBurned-plan.ExpectedCalories) > caloriesTolerance {
		return fmt.Errorf("calories %.3f, want %.3f", view.Metrics.CaloriesBurned, plan.ExpectedCalories)
	}

	if plan.ExpectedDistance > 0 {
		if view.Metrics.Distance == nil {
			return fmt.Errorf("distance missing, want %.1f", plan.ExpectedDistance)
		}
		if math.Abs(*view.Metrics.Distance-plan.ExpectedDistance) > caloriesTolerance {
			return fmt.Errorf("distance %.3f, want %.3f", *view.Metrics.Distance, plan.ExpectedDistance)
		}
	}

	if plan.ExpectShuffled && !view.RequiresReconciliation {
		return fmt.Errorf("expected reconciliation flag after out-of-order burst")
	}

	return nil
}
