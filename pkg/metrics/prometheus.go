// Package metrics provides Prometheus metrics for the pacelog ingest service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pacelog service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Core Business Metrics - the ingest pipeline
	eventsIngested     prometheus.Counter
	eventsDuplicate    prometheus.Counter
	eventsOutOfOrder   prometheus.Counter
	clockDriftDetected prometheus.Counter
	mergeLatency       prometheus.Histogram
	storeConflicts     prometheus.Counter

	// Session lifecycle
	sessionsCreated       prometheus.Counter
	sessionsCompleted     prometheus.Counter
	reconciliationFlagged *prometheus.CounterVec

	// Idempotency protocol
	idempotencyReplays   prometheus.Counter
	idempotencyConflicts prometheus.Counter
	idempotencyTakeovers prometheus.Counter
	idempotencyFailures  prometheus.Counter

	// Observability sink
	observeEmitted   prometheus.Counter
	observeDropped   prometheus.Counter
	observeQueueSize prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pacelog",
		subsystem:        "ingest",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_ingested_total",
		Help:      "Total number of events folded into a session aggregate",
	})

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_duplicate_total",
		Help:      "Total number of business-level duplicate events (same event id)",
	})

	m.eventsOutOfOrder = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_out_of_order_total",
		Help:      "Total number of events stored but excluded from aggregation",
	})

	m.clockDriftDetected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clock_drift_detected_total",
		Help:      "Total number of events carrying a clock-drift annotation",
	})

	m.mergeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "merge_latency_milliseconds",
		Help:      "Histogram of session merge transaction latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_conflicts_total",
		Help:      "Total number of conditional-create races lost in the store",
	})

	m.sessionsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_created_total",
		Help:      "Total number of sessions created by start events",
	})

	m.sessionsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_completed_total",
		Help:      "Total number of sessions transitioned to completed",
	})

	m.reconciliationFlagged = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "reconciliation_flagged_total",
			Help:      "Total number of sessions flagged for reconciliation, by reason",
		},
		[]string{"reason"},
	)

	m.idempotencyReplays = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "idempotency_replays_total",
		Help:      "Total number of cached responses replayed for a completed key",
	})

	m.idempotencyConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "idempotency_conflicts_total",
		Help:      "Total number of claims rejected because another attempt owns the key",
	})

	m.idempotencyTakeovers = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "idempotency_takeovers_total",
		Help:      "Total number of abandoned processing claims taken over",
	})

	m.idempotencyFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "idempotency_failures_total",
		Help:      "Total number of idempotency records finalized as failed",
	})

	m.observeEmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "observe_events_emitted_total",
		Help:      "Total number of observability events emitted",
	})

	m.observeDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "observe_events_dropped_total",
		Help:      "Total number of observability events dropped on a full queue",
	})

	m.observeQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "observe_queue_size",
		Help:      "Current number of queued observability events",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "Histogram of HTTP request durations in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordEventIngested increments the ingested events counter.
func RecordEventIngested() {
	globalManager.eventsIngested.Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventOutOfOrder increments the out-of-order events counter.
func RecordEventOutOfOrder() {
	globalManager.eventsOutOfOrder.Inc()
}

// RecordClockDrift increments the clock-drift counter.
func RecordClockDrift() {
	globalManager.clockDriftDetected.Inc()
}

// RecordMergeLatency records a merge transaction latency in milliseconds.
func RecordMergeLatency(latencyMs float64) {
	globalManager.mergeLatency.Observe(latencyMs)
}

// RecordStoreConflict increments the store conflict counter.
func RecordStoreConflict() {
	globalManager.storeConflicts.Inc()
}

// RecordSessionCreated increments the sessions created counter.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionCompleted increments the sessions completed counter.
func RecordSessionCompleted() {
	globalManager.sessionsCompleted.Inc()
}

// RecordReconciliationFlagged increments the reconciliation counter for reason.
func RecordReconciliationFlagged(reason string) {
	globalManager.reconciliationFlagged.WithLabelValues(reason).Inc()
}

// RecordIdempotencyReplay increments the replay counter.
func RecordIdempotencyReplay() {
	globalManager.idempotencyReplays.Inc()
}

// RecordIdempotencyConflict increments the concurrent-claim counter.
func RecordIdempotencyConflict() {
	globalManager.idempotencyConflicts.Inc()
}

// RecordIdempotencyTakeover increments the takeover counter.
func RecordIdempotencyTakeover() {
	globalManager.idempotencyTakeovers.Inc()
}

// RecordIdempotencyFailure increments the failed-finalize counter.
func RecordIdempotencyFailure() {
	globalManager.idempotencyFailures.Inc()
}

// RecordObserveEmitted increments the observability emitted counter.
func RecordObserveEmitted() {
	globalManager.observeEmitted.Inc()
}

// RecordObserveDropped increments the observability dropped counter.
func RecordObserveDropped() {
	globalManager.observeDropped.Inc()
}

// UpdateObserveQueueSize sets the current observability queue size.
func UpdateObserveQueueSize(size int) {
	globalManager.observeQueueSize.Set(float64(size))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the current memory usage.
func UpdateSystemMemoryUsage(bytes float64) {
	globalManager.systemMemoryUsage.Set(bytes)
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}
