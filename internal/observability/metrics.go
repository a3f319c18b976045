package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application. It implements the
// metric hooks consumed by the authorization engine and the audit recorder.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authzDecisions  *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	auditFailures   prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP request count by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	authz := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_authz_decisions_total",
		Help: "Authorization decisions by requirement kind and outcome.",
	}, []string{"requirement", "allowed"})
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_permission_cache_hits_total",
		Help: "Permission cache hits.",
	})
	misses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_permission_cache_misses_total",
		Help: "Permission cache misses.",
	})
	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_audit_write_failures_total",
		Help: "Audit entries dropped because the write failed.",
	})
	registry.MustRegister(requests, duration, authz, hits, misses, auditFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authzDecisions:  authz,
		cacheHits:       hits,
		cacheMisses:     misses,
		auditFailures:   auditFailures,
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

// Middleware records request metrics per route.
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

// AuthzDecision counts one authorization outcome.
func (m *Metrics) AuthzDecision(requirement string, allowed bool) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(requirement, strconv.FormatBool(allowed)).Inc()
}

// PermissionCacheHit counts a cache hit.
func (m *Metrics) PermissionCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// PermissionCacheMiss counts a cache miss.
func (m *Metrics) PermissionCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// AuditWriteFailure counts a dropped audit entry.
func (m *Metrics) AuditWriteFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// Registerer exposes the registry for custom metric registration.
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
