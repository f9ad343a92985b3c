// Package idempotency implements the two-phase claim/process/finalize
// protocol that makes event submission safe to retry.
package idempotency

import (
	"context"
	"encoding/json"
	"time"
)

// ClaimOutcome describes what the claim phase found for a key.
type ClaimOutcome int

// Claim outcomes.
const (
	// ClaimAcquired: the key was free (absent, expired, or an abandoned
	// processing claim) and a fresh processing record was installed.
	ClaimAcquired ClaimOutcome = iota
	// ClaimReplay: a completed record exists; its response is returned
	// without re-executing the processor.
	ClaimReplay
	// ClaimConflict: a live processing record exists; another attempt
	// owns the key.
	ClaimConflict
	// ClaimFailed: the key's prior attempt finalized as failed.
	ClaimFailed
)

// ClaimResult carries the outcome of one claim attempt.
type ClaimResult struct {
	Outcome ClaimOutcome
	// Response is the cached response for ClaimReplay.
	Response json.RawMessage
	// ErrorDetail is the recorded failure for ClaimFailed.
	ErrorDetail string
	// TakenOver is true when ClaimAcquired replaced an abandoned
	// processing record.
	TakenOver bool
}

// Policy bounds one claim window.
type Policy struct {
	// Now is the claim evaluation time, injected for determinism.
	Now time.Time
	// TTL bounds the record's lifetime; an expired record is treated as
	// absent.
	TTL time.Duration
	// Timeout bounds how long a processing claim stays exclusive before
	// it is eligible for takeover.
	Timeout time.Duration
}

// RecordStore persists idempotency records. Claim must be atomic with
// respect to concurrent claims on the same key.
type RecordStore interface {
	Claim(ctx context.Context, key string, request json.RawMessage, p Policy) (ClaimResult, error)

	// Complete finalizes the record with the processor's response.
	Complete(ctx context.Context, key string, response json.RawMessage) error

	// Fail finalizes the record with the failure detail.
	Fail(ctx context.Context, key string, detail string) error
}
