// Package telemetry provides logging and metrics for the cppmcp server.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one server instance. Each
// instance owns its registry so tests can build isolated collectors.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
	trackedClients   prometheus.Gauge

	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	slotsInUse      prometheus.Gauge
	fallbacksTotal  *prometheus.CounterVec
	cleanupFailures prometheus.Counter
}

// NewMetrics creates a Metrics collector backed by a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cppmcp_requests_total",
			Help: "Protocol requests handled, by method and response code",
		}, []string{"method", "code"}),
		rateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cppmcp_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
		trackedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "cppmcp_rate_limit_tracked_clients",
			Help: "Client quota entries currently held by the rate limiter",
		}),
		jobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cppmcp_jobs_total",
			Help: "Toolchain jobs by operation kind and outcome",
		}, []string{"kind", "outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cppmcp_job_duration_seconds",
			Help:    "Toolchain job duration from slot acquisition to completion",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		slotsInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "cppmcp_executor_slots_in_use",
			Help: "Concurrency slots currently held by running jobs",
		}),
		fallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cppmcp_fallback_invocations_total",
			Help: "Fallback toolchain invocations by operation kind",
		}, []string{"kind"}),
		cleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cppmcp_scope_cleanup_failures_total",
			Help: "Job resource scopes that could not be removed after all retries",
		}),
	}
}

// RecordRequest counts a handled protocol request.
func (m *Metrics) RecordRequest(method string, code int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, codeLabel(code)).Inc()
}

// RecordRateLimited counts a rejected request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

// SetTrackedClients records the size of the rate limiter's client map.
func (m *Metrics) SetTrackedClients(n int) {
	if m == nil {
		return
	}
	m.trackedClients.Set(float64(n))
}

// RecordJob records a finished job.
func (m *Metrics) RecordJob(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(kind, outcome).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SlotAcquired increments the in-use slot gauge.
func (m *Metrics) SlotAcquired() {
	if m == nil {
		return
	}
	m.slotsInUse.Inc()
}

// SlotReleased decrements the in-use slot gauge.
func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}
	m.slotsInUse.Dec()
}

// RecordFallback counts a fallback invocation.
func (m *Metrics) RecordFallback(kind string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(kind).Inc()
}

// RecordCleanupFailure counts a scope that survived all removal attempts.
func (m *Metrics) RecordCleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler that serves Prometheus-format metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func codeLabel(code int) string {
	if code == 0 {
		return "ok"
	}
	return strconv.Itoa(code)
}
