package testevents

import "time"

// HTTP status code constants.
const (
	StatusOK       = 200
	StatusConflict = 409
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	SettleDelay          = 2 * time.Second
	PercentageMultiplier = 100
)

// Fault injection cadence: every Nth session or event gets the twist.
const (
	retryEverySubmissions = 10 // resubmit with the same idempotency key
	dupEverySubmissions   = 20 // resubmit the eventId under a fresh key
	shuffleEverySessions  = 4  // swap two updates to force out-of-order
)
