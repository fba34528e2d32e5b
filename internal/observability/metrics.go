package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	decisionsTotal    *prometheus.CounterVec
	ingestTotal       *prometheus.CounterVec
	emitDropped       prometheus.Counter
	deadLettered      prometheus.Counter
	integrityFindings *prometheus.CounterVec
	partitionsDropped prometheus.Counter
	resolverCacheHits prometheus.Counter
	resolverCacheMiss prometheus.Counter
}

// NewMetrics initializes the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentra_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentra_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentra_decisions_total",
		Help: "Authorization decisions by outcome.",
	}, []string{"outcome"})
	ingest := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentra_audit_events_total",
		Help: "Ingested audit events by result.",
	}, []string{"result"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentra_audit_emit_dropped_total",
		Help: "Audit emissions dropped because the queue was full.",
	})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentra_audit_dead_lettered_total",
		Help: "Audit events written to the dead-letter store.",
	})
	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentra_integrity_findings_total",
		Help: "Hash-chain gaps or mismatches found by the verifier.",
	}, []string{"kind"})
	partitions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentra_audit_partitions_dropped_total",
		Help: "Audit partitions dropped past retention.",
	})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentra_resolver_cache_hits_total",
		Help: "Permission resolutions served from cache.",
	})
	cacheMiss := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentra_resolver_cache_misses_total",
		Help: "Permission resolutions that hit the policy store.",
	})
	registry.MustRegister(requests, duration, decisions, ingest, dropped,
		deadLettered, findings, partitions, cacheHits, cacheMiss)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		decisionsTotal:    decisions,
		ingestTotal:       ingest,
		emitDropped:       dropped,
		deadLettered:      deadLettered,
		integrityFindings: findings,
		partitionsDropped: partitions,
		resolverCacheHits: cacheHits,
		resolverCacheMiss: cacheMiss,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// RecordDecision counts an authorization decision by outcome
// (allow, deny, error).
func (m *Metrics) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordIngest counts an ingested audit event.
func (m *Metrics) RecordIngest(result string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(result).Inc()
}

// RecordEmitDropped counts an audit emission dropped on a full queue.
func (m *Metrics) RecordEmitDropped() {
	if m == nil {
		return
	}
	m.emitDropped.Inc()
}

// RecordDeadLettered counts an event diverted to the dead-letter store.
func (m *Metrics) RecordDeadLettered() {
	if m == nil {
		return
	}
	m.deadLettered.Inc()
}

// RecordIntegrityFinding counts a verifier finding by kind (gap, mismatch).
func (m *Metrics) RecordIntegrityFinding(kind string) {
	if m == nil {
		return
	}
	m.integrityFindings.WithLabelValues(kind).Inc()
}

// RecordPartitionDropped counts a dropped audit partition.
func (m *Metrics) RecordPartitionDropped() {
	if m == nil {
		return
	}
	m.partitionsDropped.Inc()
}

// RecordResolverCache counts a resolver cache hit or miss.
func (m *Metrics) RecordResolverCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.resolverCacheHits.Inc()
	} else {
		m.resolverCacheMiss.Inc()
	}
}

// Registerer exposes the registry for registering custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
