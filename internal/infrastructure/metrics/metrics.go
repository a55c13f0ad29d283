// Package metrics exposes Prometheus counters for ingestion, link writes,
// store failures and the HTTP surface. A nil *Metrics is valid and records
// nothing, so components can be built without it in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reconcile"

// Metrics holds the registry and every collector
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	rowsIngested    *prometheus.CounterVec
	linksWritten    *prometheus.CounterVec
	chunkFailures   *prometheus.CounterVec
	chunkRetries    *prometheus.CounterVec
	orphansSkipped  prometheus.Counter
	autoMatchRuns   prometheus.Counter
	autoMatchLinks  prometheus.Counter
	loadDuration    prometheus.Histogram
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "Ingested rows by source and outcome (saved, renamed, invalid, failed).",
		}, []string{"source", "outcome"}),
		linksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_written_total",
			Help:      "Link upserts by kind and outcome (saved, failed, deleted).",
		}, []string{"kind", "outcome"}),
		chunkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_chunk_failures_total",
			Help:      "Store write chunks that failed after retries, by collection.",
		}, []string{"collection"}),
		chunkRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_chunk_retries_total",
			Help:      "Store write chunk retries, by collection.",
		}, []string{"collection"}),
		orphansSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_links_skipped_total",
			Help:      "Links skipped on load because an endpoint is missing.",
		}),
		autoMatchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automatch_runs_total",
			Help:      "Auto-match runs.",
		}),
		autoMatchLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automatch_links_total",
			Help:      "Bank matches proposed by auto-match.",
		}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of full state loads.",
			Buckets:   prometheus.DefBuckets,
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.rowsIngested, m.linksWritten, m.chunkFailures, m.chunkRetries,
		m.orphansSkipped, m.autoMatchRuns, m.autoMatchLinks, m.loadDuration,
		m.requestsTotal, m.requestDuration,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RowsIngested adds n rows with the given outcome
func (m *Metrics) RowsIngested(source, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsIngested.WithLabelValues(source, outcome).Add(float64(n))
}

// LinksWritten adds n link writes with the given outcome
func (m *Metrics) LinksWritten(kind, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linksWritten.WithLabelValues(kind, outcome).Add(float64(n))
}

// ChunkFailed counts a chunk given up on
func (m *Metrics) ChunkFailed(collection string) {
	if m == nil {
		return
	}
	m.chunkFailures.WithLabelValues(collection).Inc()
}

// ChunkRetried counts one retry
func (m *Metrics) ChunkRetried(collection string) {
	if m == nil {
		return
	}
	m.chunkRetries.WithLabelValues(collection).Inc()
}

// OrphansSkipped adds orphan links found on load
func (m *Metrics) OrphansSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphansSkipped.Add(float64(n))
}

// AutoMatchRun records one run and the links it proposed
func (m *Metrics) AutoMatchRun(links int) {
	if m == nil {
		return
	}
	m.autoMatchRuns.Inc()
	if links > 0 {
		m.autoMatchLinks.Add(float64(links))
	}
}

// ObserveLoad records a full load duration
func (m *Metrics) ObserveLoad(d time.Duration) {
	if m == nil {
		return
	}
	m.loadDuration.Observe(d.Seconds())
}

// Middleware records request counts and durations per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
