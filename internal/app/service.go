// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/pacelog/pacelog/internal/adapters/observe"
	"github.com/pacelog/pacelog/internal/adapters/store"
	"github.com/pacelog/pacelog/internal/adapters/store/firestorekv"
	"github.com/pacelog/pacelog/internal/config"
	"github.com/pacelog/pacelog/internal/domain/dedupe"
	"github.com/pacelog/pacelog/internal/domain/merge"
	"github.com/pacelog/pacelog/internal/domain/model"
	"github.com/pacelog/pacelog/internal/idempotency"
	"github.com/pacelog/pacelog/pkg/clock"
	"github.com/pacelog/pacelog/pkg/logger"
	"github.com/pacelog/pacelog/pkg/metrics"
)

const sessionKeyPrefix = "session/"

// Service implements the API dependencies for the ingest system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   store.Store
	records idempotency.RecordStore
	guard   *idempotency.Guard
	engine  *merge.Engine
	cache   dedupe.Cache
	sink    *observe.Sink

	// Configuration
	cfg *config.Config
	clk clock.Clock

	// State
	started    bool
	sinkCancel context.CancelFunc

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the service configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore injects a document store, overriding the configured backend.
func WithStore(st store.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithRecordStore injects an idempotency record store, overriding the
// configured backend.
func WithRecordStore(records idempotency.RecordStore) Option {
	return func(s *Service) {
		if records != nil {
			s.records = records
		}
	}
}

// WithClock sets the time source for all components.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		clk: clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting ingest service...")

	if s.store == nil {
		st, err := s.buildStore(ctx)
		if err != nil {
			return fmt.Errorf("build store: %w", err)
		}
		s.store = st
	}

	if s.records == nil {
		records, err := s.buildRecords()
		if err != nil {
			return fmt.Errorf("build idempotency records: %w", err)
		}
		s.records = records
	}

	s.cache = dedupe.NewRecentCache(
		dedupe.WithMaxSize(s.cfg.DedupeCacheSize),
	)

	s.sink = observe.NewSink(
		observe.WithQueueSize(s.cfg.ObserveQueueSize),
		observe.WithDrainWorkers(s.cfg.ObserveDrainWorkers),
		observe.WithClock(s.clk),
	)
	sinkCtx, cancel := context.WithCancel(context.Background())
	s.sinkCancel = cancel
	s.sink.Start(sinkCtx)

	s.engine = merge.NewEngine(s.store,
		merge.WithCache(s.cache),
		merge.WithEmitter(s.sink),
		merge.WithClock(s.clk),
	)

	s.guard = idempotency.NewGuard(s.records,
		idempotency.WithTTL(s.cfg.IdempotencyTTL()),
		idempotency.WithTimeout(s.cfg.ProcessingTimeout()),
		idempotency.WithClock(s.clk),
	)

	s.started = true
	s.logger.Info(ctx, "ingest service started",
		logger.String("storeBackend", s.cfg.StoreBackend),
		logger.String("idempotencyBackend", s.cfg.IdempotencyBackend),
		logger.Duration("claimTTL", s.cfg.IdempotencyTTL()),
		logger.Duration("processingTimeout", s.cfg.ProcessingTimeout()),
	)

	return nil
}

func (s *Service) buildStore(ctx context.Context) (store.Store, error) {
	switch s.cfg.StoreBackend {
	case config.StoreFirestore:
		return firestorekv.New(ctx,
			firestorekv.WithProjectID(s.cfg.FirestoreProject),
			firestorekv.WithCollection(s.cfg.FirestoreCollection),
		)
	default:
		return store.NewMemStore(), nil
	}
}

func (s *Service) buildRecords() (idempotency.RecordStore, error) {
	switch s.cfg.IdempotencyBackend {
	case config.IdempotencyRedis:
		return idempotency.NewRedisRecords(idempotency.RedisConfig{
			Addr: s.cfg.RedisAddr,
			DB:   s.cfg.RedisDB,
		})
	default:
		return idempotency.NewStoreRecords(s.store), nil
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping ingest service...")

	if s.sink != nil {
		_ = s.sink.Close(ctx)
	}
	if s.sinkCancel != nil {
		s.sinkCancel()
	}
	if closer, ok := s.records.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "ingest service stopped")
}

// Ingest runs one event submission through the idempotency guard with
// the merge engine as the wrapped processor.
func (s *Service) Ingest(ctx context.Context, key string, request json.RawMessage, ev *model.Event) (idempotency.Result, error) {
	result, err := s.guard.Process(ctx, key, request, func(ctx context.Context) (json.RawMessage, error) {
		res, err := s.engine.MergeEvent(ctx, ev)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("marshal merge result: %w", err)
		}
		return body, nil
	})
	if err == nil && !result.IsNew && s.sink != nil {
		s.sink.Emit("idempotent_replay", map[string]any{
			"eventId":   ev.EventID,
			"sessionId": ev.SessionID,
		})
	}
	return result, err
}

// Session reads a session aggregate by id.
func (s *Service) Session(ctx context.Context, sessionID string) (*model.Session, error) {
	var sess model.Session
	if err := s.store.Get(ctx, sessionKeyPrefix+sessionID, &sess); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, merge.ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"service":            "pacelog",
		"started":            s.started,
		"storeBackend":       s.cfg.StoreBackend,
		"idempotencyBackend": s.cfg.IdempotencyBackend,
	}

	if s.started {
		stats["dedupeCacheEntries"] = s.cache.Size()
		stats["observeQueueLength"] = s.sink.Len()

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		metrics.UpdateSystemMemoryUsage(float64(mem.Alloc))
		metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		metrics.UpdateObserveQueueSize(s.sink.Len())
	}

	return stats
}
