// Package metrics provides Prometheus metrics for the trackstar service.
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
	enabled          bool
	registry         prometheus.Registerer

	// Ingestion metrics
	fetches          *prometheus.CounterVec
	fetchFailures    *prometheus.CounterVec
	cyclesSkipped    *prometheus.CounterVec
	ingestLatency    prometheus.Histogram
	readingsInserted prometheus.Counter
	playersUpserted  prometheus.Counter

	// Derivation metrics
	rankTransitions   prometheus.Counter
	activityIntervals prometheus.Counter

	// Notifier metrics
	notifications *prometheus.CounterVec

	// Shard state
	trackedPlayers *prometheus.GaugeVec
	eventSwitches  *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "trackstar",
		subsystem:        "tracker",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.fetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetches_total",
		Help:      "Total number of snapshot fetches attempted, by shard",
	}, []string{"shard"})

	m.fetchFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_failures_total",
		Help:      "Total number of failed snapshot fetches, by shard",
	}, []string{"shard"})

	m.cyclesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cycles_skipped_total",
		Help:      "Total number of poll cycles skipped by the failure backoff policy",
	}, []string{"shard"})

	m.ingestLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ingest_latency_milliseconds",
		Help:      "Histogram of snapshot ingest transaction latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.readingsInserted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "readings_inserted_total",
		Help:      "Total number of point readings accepted into the store",
	})

	m.playersUpserted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "players_upserted_total",
		Help:      "Total number of player registry upserts",
	})

	m.rankTransitions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rank_transitions_total",
		Help:      "Total number of rank transitions logged by the derivation pass",
	})

	m.activityIntervals = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "activity_intervals_total",
		Help:      "Total number of inactivity intervals detected",
	})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_total",
		Help:      "Total number of change notifications emitted, by kind",
	}, []string{"kind"})

	m.trackedPlayers = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_players",
		Help:      "Number of players registered for the tracked event, by shard",
	}, []string{"shard"})

	m.eventSwitches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "event_switches_total",
		Help:      "Total number of tracked-event switches, by shard",
	}, []string{"shard"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests, by endpoint and status",
	}, []string{"endpoint", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request duration in milliseconds, by endpoint",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint"})
}

// GetRegistry returns the registry metrics are collected into.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package-level helpers recording against the global manager.

// RecordFetch counts one fetch attempt for a shard, failed or not.
func RecordFetch(shard string, ok bool) {
	if !globalManager.enabled {
		return
	}
	globalManager.fetches.WithLabelValues(shard).Inc()
	if !ok {
		globalManager.fetchFailures.WithLabelValues(shard).Inc()
	}
}

// RecordCycleSkipped counts a poll cycle skipped by the backoff policy.
func RecordCycleSkipped(shard string) {
	if !globalManager.enabled {
		return
	}
	globalManager.cyclesSkipped.WithLabelValues(shard).Inc()
}

// RecordIngestLatency records one ingest transaction duration in milliseconds.
func RecordIngestLatency(ms float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.ingestLatency.Observe(ms)
}

// RecordReadingsInserted counts accepted point readings.
func RecordReadingsInserted(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.readingsInserted.Add(float64(n))
}

// RecordPlayersUpserted counts player registry upserts.
func RecordPlayersUpserted(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.playersUpserted.Add(float64(n))
}

// RecordRankTransitions counts logged rank transitions.
func RecordRankTransitions(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.rankTransitions.Add(float64(n))
}

// RecordActivityIntervals counts detected inactivity intervals.
func RecordActivityIntervals(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.activityIntervals.Add(float64(n))
}

// RecordNotification counts one emitted notification of the given kind.
func RecordNotification(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.notifications.WithLabelValues(kind).Inc()
}

// UpdateTrackedPlayers sets the registered-player gauge for a shard.
func UpdateTrackedPlayers(shard string, n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.trackedPlayers.WithLabelValues(shard).Set(float64(n))
}

// RecordEventSwitch counts a tracked-event switch for a shard.
func RecordEventSwitch(shard string) {
	if !globalManager.enabled {
		return
	}
	globalManager.eventSwitches.WithLabelValues(shard).Inc()
}

// RecordHTTPRequest counts one HTTP request by endpoint and status code.
func RecordHTTPRequest(endpoint, status string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint string, ms float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint).Observe(ms)
}
