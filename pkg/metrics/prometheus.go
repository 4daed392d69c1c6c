// Package metrics provides Prometheus metrics for the riftfeed daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the daemon.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Snapshot source metrics
	pollsTotal         prometheus.Counter
	pollErrorsTotal    prometheus.Counter
	pollShortCircuits  prometheus.Counter
	pollIntervalMillis prometheus.Gauge

	// Session source metrics
	sessionConnected  prometheus.Gauge
	sessionReconnects prometheus.Counter
	discoveryFailures prometheus.Counter

	// Normalizer metrics
	eventsEmitted       *prometheus.CounterVec
	eventsSuppressed    prometheus.Counter
	eventsCoalesced     prometheus.Counter
	invariantViolations prometheus.Counter

	// Fan-in queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter

	// Bus metrics
	busRetained      prometheus.Gauge
	busEvicted       prometheus.Counter
	subscriberCount  prometheus.Gauge
	subscriberMissed prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "riftfeed",
		subsystem:        "daemon",
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

	m.pollsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "polls_total",
		Help:      "Total number of snapshot poll cycles",
	})

	m.pollErrorsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_errors_total",
		Help:      "Total number of failed snapshot poll cycles",
	})

	m.pollShortCircuits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_short_circuits_total",
		Help:      "Poll cycles skipped because the payload digest was unchanged",
	})

	m.pollIntervalMillis = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_interval_milliseconds",
		Help:      "Current adaptive polling interval in milliseconds",
	})

	m.sessionConnected = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "session_connected",
		Help:      "Whether the session socket is currently connected (1) or not (0)",
	})

	m.sessionReconnects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "session_reconnects_total",
		Help:      "Total number of session socket reconnect attempts",
	})

	m.discoveryFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "discovery_failures_total",
		Help:      "Total number of discovery file lookups that found no usable file",
	})

	m.eventsEmitted = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_emitted_total",
			Help:      "Total number of canonical events published, by kind",
		},
		[]string{"kind"},
	)

	m.eventsSuppressed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_suppressed_total",
		Help:      "Candidate events suppressed by the deduplication window",
	})

	m.eventsCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_coalesced_total",
		Help:      "Candidate events merged into an aggregated event",
	})

	m.invariantViolations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "invariant_violations_total",
		Help:      "Events dropped because kind and payload disagreed (programming defect)",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the raw fan-in queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured capacity of the raw fan-in queue",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Raw batches dropped because the fan-in queue was full or closed",
	})

	m.busRetained = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_retained_events",
		Help:      "Number of canonical events currently retained in the bus tail",
	})

	m.busEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_evicted_events_total",
		Help:      "Canonical events evicted from the retained tail",
	})

	m.subscriberCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscriber_count",
		Help:      "Number of currently attached bus subscribers",
	})

	m.subscriberMissed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscriber_missed_events_total",
		Help:      "Events skipped by lagging subscribers that fell behind the retained tail",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// GetRegistry returns the custom Prometheus registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Snapshot source helpers.

func RecordPoll()             { globalManager.pollsTotal.Inc() }
func RecordPollError()        { globalManager.pollErrorsTotal.Inc() }
func RecordPollShortCircuit() { globalManager.pollShortCircuits.Inc() }

// UpdatePollInterval records the currently active polling interval.
func UpdatePollInterval(ms float64) { globalManager.pollIntervalMillis.Set(ms) }

// Session source helpers.

func UpdateSessionConnected(connected bool) {
	if connected {
		globalManager.sessionConnected.Set(1)
		return
	}
	globalManager.sessionConnected.Set(0)
}

func RecordSessionReconnect() { globalManager.sessionReconnects.Inc() }
func RecordDiscoveryFailure() { globalManager.discoveryFailures.Inc() }

// Normalizer helpers.

func RecordEventEmitted(kind string) { globalManager.eventsEmitted.WithLabelValues(kind).Inc() }
func RecordEventSuppressed()         { globalManager.eventsSuppressed.Inc() }
func RecordEventCoalesced()          { globalManager.eventsCoalesced.Inc() }
func RecordInvariantViolation()      { globalManager.invariantViolations.Inc() }

// Fan-in queue helpers.

func UpdateQueueSize(size int)         { globalManager.queueSize.Set(float64(size)) }
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }
func RecordQueueEnqueueError()         { globalManager.queueEnqueueErrors.Inc() }

// Bus helpers.

func UpdateBusRetained(n int)          { globalManager.busRetained.Set(float64(n)) }
func RecordBusEvicted(n int)           { globalManager.busEvicted.Add(float64(n)) }
func UpdateSubscriberCount(n int)      { globalManager.subscriberCount.Set(float64(n)) }
func RecordSubscriberMissed(n uint64)  { globalManager.subscriberMissed.Add(float64(n)) }

// HTTP helpers.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}
