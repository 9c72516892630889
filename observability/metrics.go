package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	wsClients prometheus.Gauge
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	indexerMetricsOnce sync.Once
	indexerRegistry    *IndexerMetrics
)

// RPC returns the lazily-initialised registry used to record JSON-RPC
// activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakevault",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
			wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "rpc",
				Name:      "ws_clients",
				Help:      "Number of connected websocket event subscribers.",
			}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
			rpcRegistry.wsClients,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of a JSON-RPC request. A zero code means the
// call succeeded; any other value is the JSON-RPC error code returned to the
// client.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied reason.
// Reasons should be stable strings such as "rate_limit" or "unauthorized" so
// dashboards and alerts remain consistent.
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// WSClientOpened increments the websocket subscriber gauge.
func (m *rpcMetrics) WSClientOpened() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

// WSClientClosed decrements the websocket subscriber gauge.
func (m *rpcMetrics) WSClientClosed() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}

// IndexerMetrics wraps collectors tracking indexer ingest health.
type IndexerMetrics struct {
	ingested     *prometheus.CounterVec
	batchLatency prometheus.Histogram
	lastSequence prometheus.Gauge
	archives     *prometheus.CounterVec
	apiRequests  *prometheus.CounterVec
}

// Indexer exposes the metrics registry for vaultindexerd.
func Indexer() *IndexerMetrics {
	indexerMetricsOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "indexer",
				Name:      "events_ingested_total",
				Help:      "Count of vault events ingested segmented by event type.",
			}, []string{"type"}),
			batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "stakevault",
				Subsystem: "indexer",
				Name:      "batch_duration_seconds",
				Help:      "Latency distribution for ingest batches.",
				Buckets:   prometheus.DefBuckets,
			}),
			lastSequence: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "indexer",
				Name:      "last_sequence",
				Help:      "Highest journal sequence number applied by the indexer.",
			}),
			archives: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "indexer",
				Name:      "archive_exports_total",
				Help:      "Count of archive export runs segmented by outcome.",
			}, []string{"outcome"}),
			apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "indexer",
				Name:      "api_requests_total",
				Help:      "Count of REST API requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
		}
		prometheus.MustRegister(
			indexerRegistry.ingested,
			indexerRegistry.batchLatency,
			indexerRegistry.lastSequence,
			indexerRegistry.archives,
			indexerRegistry.apiRequests,
		)
	})
	return indexerRegistry
}

// RecordIngest counts one ingested event of the supplied type.
func (m *IndexerMetrics) RecordIngest(eventType string) {
	if m == nil {
		return
	}
	if eventType = strings.TrimSpace(eventType); eventType == "" {
		eventType = "unknown"
	}
	m.ingested.WithLabelValues(eventType).Inc()
}

// ObserveBatch records the duration of an ingest batch and the highest applied
// sequence.
func (m *IndexerMetrics) ObserveBatch(d time.Duration, lastSequence uint64) {
	if m == nil {
		return
	}
	m.batchLatency.Observe(d.Seconds())
	m.lastSequence.Set(float64(lastSequence))
}

// RecordArchive counts one archive export run.
func (m *IndexerMetrics) RecordArchive(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.archives.WithLabelValues(outcome).Inc()
}

// RecordAPIRequest counts one REST API request. Status codes below 400 are
// treated as success.
func (m *IndexerMetrics) RecordAPIRequest(route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.apiRequests.WithLabelValues(route, outcome).Inc()
}
