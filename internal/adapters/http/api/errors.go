package api

// Canonical error strings surfaced to clients. Anything that is not a
// caller mistake or a claim conflict collapses into the generic one so
// internals never leak.
const (
	msgConcurrentRequest = "Request is already being processed"
	msgProcessingFailed  = "Processing failed"
	msgSessionNotFound   = "Session not found"
)
