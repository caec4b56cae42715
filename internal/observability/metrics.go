package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the ops server and the ledger.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postings        *prometheus.CounterVec
	deductions      *prometheus.CounterVec
	deductedBatches prometheus.Histogram
	checkouts       *prometheus.HistogramVec
	integrity       *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and ledger collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		postings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Journal posting attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		deductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_stock_deductions_total",
			Help: "FEFO stock deductions by outcome.",
		}, []string{"outcome"}),
		deductedBatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_stock_deduction_batches",
			Help:    "Batches touched by one successful deduction.",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
		checkouts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_checkout_duration_seconds",
			Help:    "Checkout latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		integrity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_integrity_violations_total",
			Help: "GL integrity check violations by check.",
		}, []string{"check"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal, m.requestDuration,
		m.postings, m.deductions, m.deductedBatches, m.checkouts, m.integrity,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records every HTTP request.
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

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObservePosting counts a journal posting attempt.
func (m *Metrics) ObservePosting(source, outcome string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(source, outcome).Inc()
}

// ObserveDeduction counts a stock deduction and, on success, how many
// batches it consumed.
func (m *Metrics) ObserveDeduction(outcome string, batches int) {
	if m == nil {
		return
	}
	m.deductions.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.deductedBatches.Observe(float64(batches))
	}
}

// ObserveCheckout records checkout latency.
func (m *Metrics) ObserveCheckout(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// IntegrityViolation counts a failed GL integrity check.
func (m *Metrics) IntegrityViolation(check string) {
	if m == nil {
		return
	}
	m.integrity.WithLabelValues(check).Inc()
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
