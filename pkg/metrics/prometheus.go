// Package metrics provides Prometheus metrics for the pitchside proximity service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Distance resolution
	resolutions         *prometheus.CounterVec
	fallbacks           *prometheus.CounterVec
	configurationErrors prometheus.Counter
	bulkFailures        prometheus.Counter
	retries             prometheus.Counter
	resolveLatency      prometheus.Histogram

	// Proximity cache
	cacheLookups       *prometheus.CounterVec
	refreshes          *prometheus.CounterVec
	refreshLatency     prometheus.Histogram
	refreshMissingDist prometheus.Counter
	activeSessions     prometheus.Gauge

	// Snapshot store
	snapshotOps *prometheus.CounterVec

	// Ranking
	rankLatency    prometheus.Histogram
	eventsRejected prometheus.Counter

	// Location feed
	locationSamples *prometheus.CounterVec

	// Queue Metrics - location sample queues
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics - refresh workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
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
		namespace:        "pitchside",
		subsystem:        "proximity",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Distance resolution
	m.resolutions = m.counterVec("distance_resolutions_total", "Distances produced, by source (REMOTE or ESTIMATED)", "source")
	m.fallbacks = m.counterVec("distance_fallbacks_total", "Geodesic fallbacks taken, by reason", "reason")
	m.configurationErrors = m.counter("distance_configuration_errors_total", "Resolutions attempted without a matrix credential")
	m.bulkFailures = m.counter("distance_bulk_failures_total", "Bulk matrix calls that failed as a whole")
	m.retries = m.counter("distance_retries_total", "Retry attempts made by the retry policy")
	m.resolveLatency = m.histogram("distance_resolve_latency_milliseconds", "Matrix service call latency in milliseconds", m.histogramBuckets)

	// Proximity cache
	m.cacheLookups = m.counterVec("cache_lookups_total", "Cache validity checks, by result (hit or miss)", "result")
	m.refreshes = m.counterVec("cache_refreshes_total", "Cache refresh attempts, by outcome", "outcome")
	m.refreshLatency = m.histogram("cache_refresh_latency_milliseconds", "Cache refresh latency in milliseconds", m.histogramBuckets)
	m.refreshMissingDist = m.counter("cache_missing_distances_total", "Events left without a distance after a refresh")
	m.activeSessions = m.gauge("active_sessions", "Number of live proximity sessions")

	m.snapshotOps = m.counterVec("snapshot_operations_total", "Snapshot store operations, by op and result", "op", "result")

	// Ranking
	m.rankLatency = m.histogram("rank_latency_milliseconds", "Ranking latency in milliseconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})
	m.eventsRejected = m.counter("events_rejected_total", "Raw events rejected at the ranking boundary")

	m.locationSamples = m.counterVec("location_samples_total", "Location samples received, by origin and result", "origin", "result")

	// Queue Metrics
	m.queueSize = m.gauge("queue_size", "Current number of queued location samples")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of samples enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of samples dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	// Worker Metrics
	m.workerActiveCount = m.gauge("worker_active_count", "Number of running refresh workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	// HTTP Performance Metrics
	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	// Error Metrics
	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	// System Performance Metrics
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Distance resolution.

// RecordResolution counts a produced distance by its source.
func RecordResolution(source string) {
	globalManager.resolutions.WithLabelValues(source).Inc()
}

// RecordFallback counts a geodesic fallback; reason is "configuration" or "transient".
func RecordFallback(reason string) {
	globalManager.fallbacks.WithLabelValues(reason).Inc()
}

// RecordConfigurationError counts a resolution attempted without a credential.
func RecordConfigurationError() {
	globalManager.configurationErrors.Inc()
}

// RecordBulkFailure counts a bulk call that failed atomically.
func RecordBulkFailure() {
	globalManager.bulkFailures.Inc()
}

// RecordRetry counts one retry attempt.
func RecordRetry() {
	globalManager.retries.Inc()
}

// RecordResolveLatency records matrix call latency in milliseconds.
func RecordResolveLatency(latencyMs float64) {
	globalManager.resolveLatency.Observe(latencyMs)
}

// Proximity cache.

// RecordCacheHit counts a shouldRefresh=false decision.
func RecordCacheHit() {
	globalManager.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a shouldRefresh=true decision.
func RecordCacheMiss() {
	globalManager.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordRefresh counts a refresh by outcome: committed, stale, aborted.
func RecordRefresh(outcome string) {
	globalManager.refreshes.WithLabelValues(outcome).Inc()
}

// RecordRefreshLatency records refresh latency in milliseconds.
func RecordRefreshLatency(latencyMs float64) {
	globalManager.refreshLatency.Observe(latencyMs)
}

// RecordMissingDistances adds events left without a distance after a refresh.
func RecordMissingDistances(n int) {
	globalManager.refreshMissingDist.Add(float64(n))
}

// UpdateActiveSessions sets the live session count.
func UpdateActiveSessions(n int) {
	globalManager.activeSessions.Set(float64(n))
}

// RecordSnapshot counts a snapshot store operation (save, load, delete) and its result.
func RecordSnapshot(op, result string) {
	globalManager.snapshotOps.WithLabelValues(op, result).Inc()
}

// Ranking.

// RecordRankLatency records ranking latency in milliseconds.
func RecordRankLatency(latencyMs float64) {
	globalManager.rankLatency.Observe(latencyMs)
}

// RecordEventsRejected adds raw events rejected by projection.
func RecordEventsRejected(n int) {
	globalManager.eventsRejected.Add(float64(n))
}

// RecordLocationSample counts a location sample by origin (http, amqp) and result.
func RecordLocationSample(origin, result string) {
	globalManager.locationSamples.WithLabelValues(origin, result).Inc()
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
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
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

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
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
