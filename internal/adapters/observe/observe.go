// Package observe fans ingest telemetry out to handlers without ever
// blocking the write path.
//
// Signals are buffered on a bounded channel and drained by background
// workers. When the buffer is full new signals are dropped and counted;
// losing telemetry is always preferable to stalling a merge.
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pacelog/pacelog/pkg/clock"
	"github.com/pacelog/pacelog/pkg/logger"
	"github.com/pacelog/pacelog/pkg/metrics"
)

// Default sink configuration constants.
const (
	defaultQueueSize    = 10000
	defaultDrainWorkers = 2
	drainStopTimeout    = 5 * time.Second
)

// Signal is one named telemetry record with its payload.
type Signal struct {
	Name    string
	At      time.Time
	Payload map[string]any
}

// Handler consumes drained signals. Handlers run on the drain
// goroutines and must not block for long.
type Handler interface {
	Handle(ctx context.Context, sig Signal)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, sig Signal)

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, sig Signal) { f(ctx, sig) }

// Sink is the bounded, non-blocking signal collector.
type Sink struct {
	signals  chan Signal
	capacity int
	workers  int
	handlers []Handler
	clk      clock.Clock
	log      logger.Logger

	shutdown chan struct{}
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSink creates a sink with configuration options. Call Start before
// emitting; signals emitted earlier sit in the buffer until then.
func NewSink(opts ...Option) *Sink {
	s := &Sink{
		capacity: defaultQueueSize,
		workers:  defaultDrainWorkers,
		clk:      clock.Real(),
		log:      logger.Get().Named("observe"),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.handlers) == 0 {
		s.handlers = []Handler{newLogHandler(s.log)}
	}
	s.signals = make(chan Signal, s.capacity)

	metrics.UpdateObserveQueueSize(0)
	return s
}

// Emit queues a signal. It never blocks: a full buffer or a closed
// sink drops the signal and counts the drop.
func (s *Sink) Emit(name string, payload map[string]any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		metrics.RecordObserveDropped()
		return
	}

	sig := Signal{Name: name, At: s.clk.Now(), Payload: payload}
	select {
	case s.signals <- sig:
		metrics.RecordObserveEmitted()
		metrics.UpdateObserveQueueSize(len(s.signals))
	default:
		metrics.RecordObserveDropped()
	}
}

// Len returns the number of buffered signals.
func (s *Sink) Len() int {
	return len(s.signals)
}

// Start launches the drain workers. They run until the context is
// canceled or the sink is closed.
func (s *Sink) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.drain(ctx)
		}()
	}
	go func() {
		wg.Wait()
		close(s.done)
	}()
}

// drain is one worker loop. It keeps consuming after shutdown is
// signaled until the buffer is empty, so close flushes what it can.
func (s *Sink) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			s.dispatch(ctx, sig)
		case <-s.shutdown:
			for {
				select {
				case sig, ok := <-s.signals:
					if !ok {
						return
					}
					s.dispatch(ctx, sig)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) dispatch(ctx context.Context, sig Signal) {
	for _, h := range s.handlers {
		h.Handle(ctx, sig)
	}
	metrics.UpdateObserveQueueSize(len(s.signals))
}

// Close stops accepting signals, flushes the buffer and waits for the
// drain workers to finish.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)

	stopCtx, cancel := context.WithTimeout(ctx, drainStopTimeout)
	defer cancel()

	select {
	case <-s.done:
		return nil
	case <-stopCtx.Done():
		s.log.Warn(ctx, "observe sink drain timed out",
			logger.Int("buffered", len(s.signals)),
		)
		return fmt.Errorf("observe sink close: %w", stopCtx.Err())
	}
}

// logHandler is the default handler: structured debug logging of each
// signal.
type logHandler struct {
	log logger.Logger
}

func newLogHandler(log logger.Logger) *logHandler {
	return &logHandler{log: log}
}

func (h *logHandler) Handle(ctx context.Context, sig Signal) {
	h.log.Debug(ctx, sig.Name,
		logger.Any("payload", sig.Payload),
		logger.String("at", sig.At.Format(time.RFC3339Nano)),
	)
}
