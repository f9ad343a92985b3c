// Package merge orchestrates the atomic read-merge-write that folds one
// event into its session aggregate.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pacelog/pacelog/internal/adapters/store"
	"github.com/pacelog/pacelog/internal/domain/aggregate"
	"github.com/pacelog/pacelog/internal/domain/dedupe"
	"github.com/pacelog/pacelog/internal/domain/model"
	"github.com/pacelog/pacelog/internal/domain/ordering"
	"github.com/pacelog/pacelog/pkg/clock"
	"github.com/pacelog/pacelog/pkg/logger"
	"github.com/pacelog/pacelog/pkg/metrics"
)

// Document key namespaces inside the store.
const (
	sessionKeyPrefix = "session/"
	eventKeyPrefix   = "event/"
)

const duplicateWarning = "event already processed; duplicate submission ignored"

// Emitter is the observability collaborator: named events, fire and
// forget, never allowed to fail the ingest path.
type Emitter interface {
	Emit(name string, payload map[string]any)
}

// Engine executes one store transaction per event.
type Engine struct {
	store store.Store
	cache dedupe.Cache
	sink  Emitter
	clk   clock.Clock
	log   logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithCache sets the advisory recent-event-id cache.
func WithCache(c dedupe.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithEmitter sets the observability sink.
func WithEmitter(s Emitter) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithClock sets the clock used for commit timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clk = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine creates a merge engine over the given store.
func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		clk:   clock.Real(),
		sink:  noopEmitter{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		e.log = logger.Get().Named("merge")
	}

	return e
}

// mergeOutcome collects what happened inside the transaction so the
// side effects (metrics, observability events) can run after commit.
type mergeOutcome struct {
	result         *model.MergeResult
	sessionCreated bool
	completed      bool
	newlyFlagged   bool
	flagReason     model.ReconciliationReason
	clockDrift     bool
}

// MergeEvent folds ev into its session inside one atomic transaction
// and returns the merge outcome. A previously seen eventId yields an
// already_processed result without touching the session.
func (e *Engine) MergeEvent(ctx context.Context, ev *model.Event) (*model.MergeResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordMergeLatency(float64(time.Since(start).Milliseconds()))
	}()

	// Advisory fast path: the cache only holds ids whose merge has
	// committed, so a hit is a confirmed business duplicate. The lookup
	// is read-only; an in-flight id must stay invisible until commit.
	if e.cache != nil && e.cache.Seen(ctx, ev.EventID) {
		return e.duplicateResult(ctx, ev), nil
	}

	var out mergeOutcome
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		out = mergeOutcome{}
		return e.mergeInTx(ctx, tx, ev, &out)
	})
	if err != nil {
		if errors.Is(err, ErrStoreConflict) {
			metrics.RecordStoreConflict()
		}
		return nil, err
	}

	if e.cache != nil {
		e.cache.Record(ctx, ev.EventID)
	}
	e.recordSideEffects(ctx, ev, &out)
	return out.result, nil
}

// mergeInTx is the transaction body: reads first, then writes, per the
// store contract.
func (e *Engine) mergeInTx(ctx context.Context, tx store.Tx, ev *model.Event, out *mergeOutcome) error {
	// 1. Business-level duplicate check. Must precede any session
	// mutation.
	var existing model.Event
	err := tx.Get(ctx, eventKeyPrefix+ev.EventID, &existing)
	if err == nil {
		out.result = &model.MergeResult{
			Status:     model.MergeStatusAlreadyProcessed,
			SessionID:  existing.SessionID,
			OutOfOrder: existing.OutOfOrder,
			Warning:    duplicateWarning,
		}
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := e.clk.Now()

	// 2. Read and merge the session.
	var sess model.Session
	serr := tx.Get(ctx, sessionKeyPrefix+ev.SessionID, &sess)
	switch {
	case errors.Is(serr, store.ErrNotFound):
		if ev.Type != model.EventStart {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, ev.SessionID)
		}
		created := model.NewSession(ev, now)
		d := ordering.Evaluate(created, ev)
		d.Commit(created)
		aggregate.Apply(created, ev, now)
		created.Version = 1
		created.LastUpdated = now

		// The conditional create is the sole concurrency-correctness
		// mechanism for racing starts: the loser aborts here.
		if cerr := tx.Create(ctx, sessionKeyPrefix+ev.SessionID, created); cerr != nil {
			if errors.Is(cerr, store.ErrKeyExists) {
				return fmt.Errorf("%w: %s", ErrStoreConflict, ev.SessionID)
			}
			return cerr
		}
		out.sessionCreated = true
		out.completed = created.Status == model.StatusCompleted
		sess = *created

	case serr != nil:
		return serr

	default:
		wasCompleted := sess.Status == model.StatusCompleted
		wasFlagged := sess.RequiresReconciliation

		d := ordering.Evaluate(&sess, ev)
		ev.OutOfOrder = d.OutOfOrder
		d.Commit(&sess)

		// Quarantined events are stored but never folded in; the
		// watermark above still advanced.
		if !d.OutOfOrder {
			aggregate.Apply(&sess, ev, now)
		}
		sess.Version++
		sess.LastUpdated = now

		if werr := tx.Set(ctx, sessionKeyPrefix+ev.SessionID, &sess); werr != nil {
			return werr
		}
		out.completed = !wasCompleted && sess.Status == model.StatusCompleted
		out.newlyFlagged = !wasFlagged && sess.RequiresReconciliation
		out.flagReason = sess.ReconciliationReason
	}

	// 3. Write the permanent event record. Its absence was confirmed in
	// step 1 inside this same transaction.
	ev.ServerTimestamp = now
	if werr := tx.Create(ctx, eventKeyPrefix+ev.EventID, ev); werr != nil {
		return werr
	}

	out.clockDrift = ev.ClockDriftDetected
	out.result = &model.MergeResult{
		Status:                 model.MergeStatusSuccess,
		SessionID:              sess.SessionID,
		SessionStatus:          sess.Status,
		Metrics:                model.CurrentMetricsOf(&sess),
		RequiresReconciliation: sess.RequiresReconciliation,
		OutOfOrder:             ev.OutOfOrder,
	}
	return nil
}

// duplicateResult is the fast-path answer for a cache-confirmed
// duplicate.
func (e *Engine) duplicateResult(ctx context.Context, ev *model.Event) *model.MergeResult {
	metrics.RecordEventDuplicate()
	e.sink.Emit("duplicate_event", map[string]any{
		"eventId":   ev.EventID,
		"sessionId": ev.SessionID,
		"userId":    ev.UserID,
	})
	e.log.Debug(ctx, "duplicate event short-circuited",
		logger.String("eventId", ev.EventID),
		logger.String("sessionId", ev.SessionID),
	)
	return &model.MergeResult{
		Status:    model.MergeStatusAlreadyProcessed,
		SessionID: ev.SessionID,
		Warning:   duplicateWarning,
	}
}

// recordSideEffects emits metrics and observability events after the
// transaction committed. None of these can fail the ingest path.
func (e *Engine) recordSideEffects(ctx context.Context, ev *model.Event, out *mergeOutcome) {
	if out.result.Status == model.MergeStatusAlreadyProcessed {
		metrics.RecordEventDuplicate()
		e.sink.Emit("duplicate_event", map[string]any{
			"eventId":   ev.EventID,
			"sessionId": out.result.SessionID,
			"userId":    ev.UserID,
		})
		return
	}

	metrics.RecordEventIngested()
	if out.sessionCreated {
		metrics.RecordSessionCreated()
	}
	if out.completed {
		metrics.RecordSessionCompleted()
	}
	if ev.OutOfOrder {
		metrics.RecordEventOutOfOrder()
	}
	if out.clockDrift {
		metrics.RecordClockDrift()
	}
	if out.newlyFlagged {
		metrics.RecordReconciliationFlagged(string(out.flagReason))
		e.sink.Emit("reconciliation_flagged", map[string]any{
			"sessionId": out.result.SessionID,
			"reason":    string(out.flagReason),
		})
	}

	e.sink.Emit("event_ingested", map[string]any{
		"eventId":    ev.EventID,
		"sessionId":  out.result.SessionID,
		"userId":     ev.UserID,
		"type":       string(ev.Type),
		"outOfOrder": ev.OutOfOrder,
	})
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]any) {}
