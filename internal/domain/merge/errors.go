package merge

import "errors"

// Sentinel kinds for merge errors.
var (
	// ErrSessionNotFound: a non-start event arrived for a session that
	// does not exist. Fatal for the request; sessions are created only
	// by start events.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreConflict: the conditional create of a new session lost a
	// race with a concurrent start. The attempt aborts; its own guard
	// invocation retries it as an independent attempt.
	ErrStoreConflict = errors.New("session create conflict")
)
