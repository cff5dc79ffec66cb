// Package metrics provides Prometheus metrics for the elorank rating service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the rating service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64 // nanoseconds
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Rating engine
	judgmentsTotal      *prometheus.CounterVec
	judgmentsDuplicate  prometheus.Counter
	judgmentErrors      *prometheus.CounterVec
	matchupsTotal       *prometheus.CounterVec
	matchupsUnavailable prometheus.Counter
	kFactor             prometheus.Histogram
	ratingDelta         prometheus.Histogram
	convergence         *prometheus.GaugeVec
	collectionItems     *prometheus.GaugeVec
	collectionsTotal    prometheus.Gauge

	// Rating store
	storeLatency       *prometheus.HistogramVec
	storeErrors        *prometheus.CounterVec
	storeBreakerState  *prometheus.GaugeVec
	storeSubscriptions prometheus.Gauge
	storeCorruptReads  *prometheus.CounterVec

	// Judgment queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Serialized writers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	websocketClients    prometheus.Gauge

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
		namespace:        "elorank",
		subsystem:        "rating",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.judgmentsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("judgments_total"),
		Help: "Total number of judgments applied, by outcome",
	}, []string{"outcome"})

	m.judgmentsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("judgments_duplicate_total"),
		Help: "Total number of replayed judgments ignored by idempotency tracking",
	})

	m.judgmentErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("judgment_errors_total"),
		Help: "Total number of rejected or failed judgments, by reason",
	}, []string{"reason"})

	m.matchupsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("matchups_total"),
		Help: "Total number of matchups proposed, by selection branch",
	}, []string{"branch"})

	m.matchupsUnavailable = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("matchups_unavailable_total"),
		Help: "Total number of matchup requests on pools with fewer than two items",
	})

	m.kFactor = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("k_factor"),
		Help:    "Distribution of the dynamic K-factor used per judgment",
		Buckets: []float64{8, 12, 16, 24, 32, 40, 48, 56, 64},
	})

	m.ratingDelta = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("rating_delta_abs"),
		Help:    "Absolute rating change of the baseline item per judgment",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 24, 32, 48, 64},
	})

	m.convergence = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("convergence_ratio"),
		Help: "Last computed convergence of a collection in [0,1]",
	}, []string{"collection"})

	m.collectionItems = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("collection_items"),
		Help: "Number of registered items per collection",
	}, []string{"collection"})

	m.collectionsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("collections_total"),
		Help: "Number of collections with a registered item pool",
	})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("store_latency_milliseconds"),
		Help:    "Rating store operation latency in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"backend", "op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("store_errors_total"),
		Help: "Rating store operation failures",
	}, []string{"backend", "op"})

	m.storeBreakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("store_breaker_state"),
		Help: "Circuit breaker state for remote stores (0=closed, 1=half-open, 2=open)",
	}, []string{"backend"})

	m.storeSubscriptions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("store_subscriptions"),
		Help: "Active live-update subscriptions on the rating store",
	})

	m.storeCorruptReads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("store_corrupt_reads_total"),
		Help: "Stored records that could not be decoded and were read as zero records",
	}, []string{"backend"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_size"),
		Help: "Current number of judgments waiting for a writer",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_capacity"),
		Help: "Total judgment queue capacity across writers",
	})

	m.queueEnqueue = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_enqueue_total"),
		Help: "Total number of judgments enqueued",
	})

	m.queueDequeue = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_dequeue_total"),
		Help: "Total number of judgments dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_enqueue_errors_total"),
		Help: "Judgments refused by the queue, by reason",
	}, []string{"reason"})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_count"),
		Help: "Number of serialized collection writers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("worker_processing_latency_milliseconds"),
		Help:    "Read-modify-write cycle latency per judgment in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_errors_total"),
		Help: "Judgments a writer failed to apply",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("http_errors_total"),
		Help: "HTTP error responses by endpoint, method and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.websocketClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("websocket_clients"),
		Help: "Connected live-update websocket clients",
	})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("system_memory_bytes"),
		Help: "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("system_goroutine_count"),
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("system_gc_pause_time_milliseconds"),
		Help:    "GC pause time in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Enabled reports whether recorders update their metrics.
func Enabled() bool { return globalManager.enabled.Load() }

// SetEnabled turns every recorder on or off. Registered metrics keep their
// last values while disabled.
func SetEnabled(enabled bool) { globalManager.enabled.Store(enabled) }

// RefreshInterval is how often periodic gauges (queue depth, system
// memory and goroutines) should be sampled.
func RefreshInterval() time.Duration {
	return time.Duration(globalManager.refreshInterval.Load())
}

// SetRefreshInterval changes the sampling period of periodic gauges.
// Non-positive values are ignored.
func SetRefreshInterval(d time.Duration) {
	if d > 0 {
		globalManager.refreshInterval.Store(int64(d))
	}
}

// Rating engine.

// RecordJudgment increments the judgments counter for an outcome and records
// the K-factor and absolute baseline delta used.
func RecordJudgment(outcome string, k, delta float64) {
	if !Enabled() {
		return
	}
	globalManager.judgmentsTotal.WithLabelValues(outcome).Inc()
	globalManager.kFactor.Observe(k)
	if delta < 0 {
		delta = -delta
	}
	globalManager.ratingDelta.Observe(delta)
}

// RecordJudgmentDuplicate increments the duplicate judgments counter.
func RecordJudgmentDuplicate() {
	if !Enabled() {
		return
	}
	globalManager.judgmentsDuplicate.Inc()
}

// RecordJudgmentError increments the judgment error counter for reason.
func RecordJudgmentError(reason string) {
	if !Enabled() {
		return
	}
	globalManager.judgmentErrors.WithLabelValues(reason).Inc()
}

// RecordMatchup increments the matchup counter for a selection branch.
func RecordMatchup(branch string) {
	if !Enabled() {
		return
	}
	globalManager.matchupsTotal.WithLabelValues(branch).Inc()
}

// RecordMatchupUnavailable counts matchup requests that had no valid pair.
func RecordMatchupUnavailable() {
	if !Enabled() {
		return
	}
	globalManager.matchupsUnavailable.Inc()
}

// UpdateConvergence sets the last computed convergence for a collection.
func UpdateConvergence(collection string, value float64) {
	if !Enabled() {
		return
	}
	globalManager.convergence.WithLabelValues(collection).Set(value)
}

// UpdateCollectionItems sets the registered pool size of a collection.
func UpdateCollectionItems(collection string, count int) {
	if !Enabled() {
		return
	}
	globalManager.collectionItems.WithLabelValues(collection).Set(float64(count))
}

// UpdateCollectionsTotal sets the number of registered collections.
func UpdateCollectionsTotal(count int) {
	if !Enabled() {
		return
	}
	globalManager.collectionsTotal.Set(float64(count))
}

// Rating store.

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	if !Enabled() {
		return
	}
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError increments the store error counter.
func RecordStoreError(backend, op string) {
	if !Enabled() {
		return
	}
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// UpdateStoreBreakerState sets the breaker state gauge (0 closed, 1 half-open, 2 open).
func UpdateStoreBreakerState(backend string, state int) {
	if !Enabled() {
		return
	}
	globalManager.storeBreakerState.WithLabelValues(backend).Set(float64(state))
}

// AddStoreSubscriptions adjusts the active subscription gauge by delta.
func AddStoreSubscriptions(delta int) {
	if !Enabled() {
		return
	}
	globalManager.storeSubscriptions.Add(float64(delta))
}

// RecordStoreCorruptRead counts an undecodable stored record.
func RecordStoreCorruptRead(backend string) {
	if !Enabled() {
		return
	}
	globalManager.storeCorruptReads.WithLabelValues(backend).Inc()
}

// Judgment queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !Enabled() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !Enabled() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !Enabled() {
		return
	}
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !Enabled() {
		return
	}
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter for reason.
func RecordQueueEnqueueError(reason string) {
	if !Enabled() {
		return
	}
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// Writers.

// UpdateWorkerCount sets the current writer count.
func UpdateWorkerCount(count int) {
	if !Enabled() {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records writer processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !Enabled() {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the writer error counter.
func RecordWorkerError() {
	if !Enabled() {
		return
	}
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !Enabled() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !Enabled() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !Enabled() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// AddWebsocketClients adjusts the connected websocket client gauge by delta.
func AddWebsocketClients(delta int) {
	if !Enabled() {
		return
	}
	globalManager.websocketClients.Add(float64(delta))
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !Enabled() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !Enabled() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !Enabled() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
