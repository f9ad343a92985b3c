package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pacelog/pacelog/pkg/clock"
	"github.com/pacelog/pacelog/pkg/logger"
	"github.com/pacelog/pacelog/pkg/metrics"
)

// Default protocol bounds.
const (
	defaultTTL     = 24 * time.Hour
	defaultTimeout = 2 * time.Minute
)

// Processor is the wrapped side effect. It runs at most once per claim
// window and returns the response to cache for replays.
type Processor func(ctx context.Context) (json.RawMessage, error)

// Result is the outcome of an idempotent submission.
type Result struct {
	// IsNew is false when the response was replayed from a completed
	// record.
	IsNew    bool
	Response json.RawMessage
}

// Guard wraps an arbitrary processor with the claim -> process ->
// finalize protocol, keyed by a client-supplied request token.
type Guard struct {
	records RecordStore
	clk     clock.Clock
	ttl     time.Duration
	timeout time.Duration
	log     logger.Logger
}

// Option applies a configuration option to the Guard.
type Option func(*Guard)

// WithTTL sets the record lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithTimeout sets the processing-claim takeover timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Guard) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithClock sets the clock used for claim evaluation.
func WithClock(c clock.Clock) Option {
	return func(g *Guard) {
		if c != nil {
			g.clk = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGuard creates a Guard over the given record store.
func NewGuard(records RecordStore, opts ...Option) *Guard {
	g := &Guard{
		records: records,
		clk:     clock.Real(),
		ttl:     defaultTTL,
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.log == nil {
		g.log = logger.Get().Named("idempotency")
	}

	return g
}

// Process claims key, runs processor on a fresh claim, and finalizes the
// record with the outcome. Concurrent callers with the same key observe
// either the cached result or ErrConcurrentRequest - never a silent
// duplicate execution.
func (g *Guard) Process(ctx context.Context, key string, request json.RawMessage, processor Processor) (Result, error) {
	p := Policy{Now: g.clk.Now(), TTL: g.ttl, Timeout: g.timeout}

	claim, err := g.records.Claim(ctx, key, request, p)
	if err != nil {
		return Result{}, fmt.Errorf("claim %s: %w", key, err)
	}

	switch claim.Outcome {
	case ClaimReplay:
		metrics.RecordIdempotencyReplay()
		g.log.Debug(ctx, "replaying cached response", logger.String("key", key))
		return Result{IsNew: false, Response: claim.Response}, nil

	case ClaimConflict:
		metrics.RecordIdempotencyConflict()
		return Result{}, fmt.Errorf("%w: %s", ErrConcurrentRequest, key)

	case ClaimFailed:
		return Result{}, fmt.Errorf("%w: %s: %s", ErrPreviousAttemptFailed, key, claim.ErrorDetail)
	}

	if claim.TakenOver {
		metrics.RecordIdempotencyTakeover()
		g.log.Warn(ctx, "took over abandoned processing claim", logger.String("key", key))
	}

	response, perr := processor(ctx)
	if perr != nil {
		// The failure must be durably observable before it propagates.
		metrics.RecordIdempotencyFailure()
		if ferr := g.records.Fail(ctx, key, perr.Error()); ferr != nil {
			g.log.Error(ctx, "failed to finalize record as failed",
				logger.String("key", key), logger.Error(ferr))
		}
		return Result{}, perr
	}

	// Best-effort: if this update fails the record stays processing
	// until timeout takeover, and the business-level event dedup keeps a
	// retry from double-applying.
	if cerr := g.records.Complete(ctx, key, response); cerr != nil {
		g.log.Warn(ctx, "failed to finalize record as completed",
			logger.String("key", key), logger.Error(cerr))
	}

	return Result{IsNew: true, Response: response}, nil
}
