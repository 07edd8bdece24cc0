// Package metrics provides Prometheus metrics for the questrank leaderboard service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the questrank service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ranking
	snapshotsBuilt   *prometheus.CounterVec
	snapshotLatency  *prometheus.HistogramVec
	populationSize   *prometheus.GaugeVec
	callerLookups    *prometheus.CounterVec
	invalidArguments prometheus.Counter

	// Aggregation
	aggregationLatency *prometheus.HistogramVec
	storeReadLatency   *prometheus.HistogramVec
	storeReadErrors    *prometheus.CounterVec
	malformedResults   *prometheus.CounterVec
	orphanFacts        *prometheus.CounterVec

	// Cache
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheErrors        *prometheus.CounterVec
	cacheInvalidations prometheus.Counter
	sharedBuilds       prometheus.Counter

	// Fact-change notifications
	notificationsReceived  *prometheus.CounterVec
	notificationsDuplicate prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "questrank",
		subsystem:        "leaderboard",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval returns how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.snapshotsBuilt = m.counterVec("snapshots_built_total", "Leaderboard snapshots returned, by period and source (fresh or cache)", "period", "source")
	m.snapshotLatency = m.histogramVec("snapshot_latency_milliseconds", "End-to-end GetLeaderboard latency in milliseconds", "period")
	m.populationSize = m.gaugeVec("population_size", "Number of ranked users in the last computed standings", "period")
	m.callerLookups = m.counterVec("caller_lookups_total", "Caller rank lookups by outcome (in_window, outside_window, absent)", "outcome")
	m.invalidArguments = m.counter("invalid_arguments_total", "Queries rejected for an invalid window size or period")

	m.aggregationLatency = m.histogramVec("aggregation_latency_milliseconds", "Time to aggregate score records from the achievement store", "period")
	m.storeReadLatency = m.histogramVec("store_read_latency_milliseconds", "Latency of a single bulk read against the achievement store", "read")
	m.storeReadErrors = m.counterVec("store_read_errors_total", "Failed bulk reads against the achievement store", "read")
	m.malformedResults = m.counterVec("store_malformed_results_total", "Store results rejected as malformed", "reason")
	m.orphanFacts = m.counterVec("orphan_fact_users_total", "Users with facts but no profile, dropped during aggregation", "kind")

	m.cacheHits = m.counterVec("cache_hits_total", "Standings cache hits", "backend")
	m.cacheMisses = m.counterVec("cache_misses_total", "Standings cache misses", "backend")
	m.cacheErrors = m.counterVec("cache_errors_total", "Standings cache backend errors (served fresh instead)", "backend", "op")
	m.cacheInvalidations = m.counter("cache_invalidations_total", "Standings cache invalidations triggered by fact changes")
	m.sharedBuilds = m.counter("shared_builds_total", "Queries that joined an in-flight standings computation instead of starting one")

	m.notificationsReceived = m.counterVec("fact_notifications_total", "Fact-change notifications received by source", "source")
	m.notificationsDuplicate = m.counter("fact_notifications_duplicate_total", "Fact-change notifications dropped as duplicates")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.queueSize = m.gauge("queue_size", "Current number of queued fact-change notifications")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the notification queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization (size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of notifications enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of notifications dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected (full, closed or cancelled)")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds")

	m.workerCount = m.gauge("worker_count", "Current number of invalidation workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time spent by a worker handling one notification")
	m.workerErrorRate = m.counter("worker_errors_total", "Notifications a worker failed to handle")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause time in milliseconds")
}

// Ranking Metrics Functions.

// RecordSnapshot counts a snapshot returned for period; source is "fresh" or "cache".
func RecordSnapshot(period, source string, latencyMs float64) {
	globalManager.snapshotsBuilt.WithLabelValues(period, source).Inc()
	globalManager.snapshotLatency.WithLabelValues(period).Observe(latencyMs)
}

// UpdatePopulationSize sets the population gauge for period.
func UpdatePopulationSize(period string, size int) {
	globalManager.populationSize.WithLabelValues(period).Set(float64(size))
}

// RecordCallerLookup counts a caller lookup outcome.
func RecordCallerLookup(outcome string) {
	globalManager.callerLookups.WithLabelValues(outcome).Inc()
}

// RecordInvalidArgument counts a rejected query.
func RecordInvalidArgument() {
	globalManager.invalidArguments.Inc()
}

// Aggregation Metrics Functions.

// RecordAggregationLatency records aggregation latency in milliseconds.
func RecordAggregationLatency(period string, latencyMs float64) {
	globalManager.aggregationLatency.WithLabelValues(period).Observe(latencyMs)
}

// RecordStoreRead records the latency of a bulk read and whether it failed.
func RecordStoreRead(read string, latencyMs float64, failed bool) {
	globalManager.storeReadLatency.WithLabelValues(read).Observe(latencyMs)
	if failed {
		globalManager.storeReadErrors.WithLabelValues(read).Inc()
		globalManager.errorRateByComponent.WithLabelValues("store", read).Inc()
	}
}

// RecordMalformedResult counts a rejected store result.
func RecordMalformedResult(reason string) {
	globalManager.malformedResults.WithLabelValues(reason).Inc()
}

// RecordOrphanFacts adds n users whose facts had no matching profile.
func RecordOrphanFacts(kind string, n int) {
	globalManager.orphanFacts.WithLabelValues(kind).Add(float64(n))
}

// Cache Metrics Functions.

// RecordCacheHit counts a cache hit on backend.
func RecordCacheHit(backend string) {
	globalManager.cacheHits.WithLabelValues(backend).Inc()
}

// RecordCacheMiss counts a cache miss on backend.
func RecordCacheMiss(backend string) {
	globalManager.cacheMisses.WithLabelValues(backend).Inc()
}

// RecordCacheError counts a cache backend failure.
func RecordCacheError(backend, op string) {
	globalManager.cacheErrors.WithLabelValues(backend, op).Inc()
	globalManager.errorRateByComponent.WithLabelValues("cache", op).Inc()
}

// RecordCacheInvalidation counts a cache invalidation.
func RecordCacheInvalidation() {
	globalManager.cacheInvalidations.Inc()
}

// RecordSharedBuild counts a query served by an in-flight computation.
func RecordSharedBuild() {
	globalManager.sharedBuilds.Inc()
}

// Notification Metrics Functions.

// RecordNotification counts a fact-change notification from source.
func RecordNotification(source string) {
	globalManager.notificationsReceived.WithLabelValues(source).Inc()
}

// RecordNotificationDuplicate counts a dropped duplicate notification.
func RecordNotificationDuplicate() {
	globalManager.notificationsDuplicate.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.Inc()
	globalManager.errorRateByComponent.WithLabelValues("queue", reason).Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError(errorType string) {
	globalManager.workerErrorRate.Inc()
	globalManager.errorRateByComponent.WithLabelValues("worker", errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
