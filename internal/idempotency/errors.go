package idempotency

import "errors"

// Sentinel kinds for idempotency errors.
var (
	// ErrConcurrentRequest means a different in-flight attempt owns the
	// key. The caller should retry later without changing the key.
	ErrConcurrentRequest = errors.New("request is already being processed")

	// ErrPreviousAttemptFailed means the key's prior attempt finalized
	// as failed. The caller must retry with a new key; the guard never
	// silently re-executes a failed attempt under the same key.
	ErrPreviousAttemptFailed = errors.New("previous attempt for this key failed")
)
