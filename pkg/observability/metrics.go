package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invocation outcomes used as the status label.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusRejected = "rejected"
)

var durationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Metrics holds the Prometheus collectors of the service. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	inFlight           prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics creates a registry with Go/process collectors and the
// dispatcher's own metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "function_invocations_total",
				Help:      "Total number of cloud function dispatches by outcome",
			},
			[]string{"app", "function", "status"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "function_duration_milliseconds",
				Help:      "Time from invocation to completion in milliseconds",
				Buckets:   durationBuckets,
			},
			[]string{"app", "function"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "function_invocations_in_flight",
				Help:      "Invocations started but not yet completed",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(m.invocationsTotal, m.invocationDuration, m.inFlight, m.httpRequests, m.httpDuration)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InvocationStarted increments the in-flight gauge.
func (m *Metrics) InvocationStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// InvocationFinished records a completed invocation.
func (m *Metrics) InvocationFinished(app, function, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.invocationsTotal.WithLabelValues(app, function, status).Inc()
	m.invocationDuration.WithLabelValues(app, function).Observe(float64(d) / float64(time.Millisecond))
}

// InvocationRejected records a dispatch that failed before invocation.
func (m *Metrics) InvocationRejected(app, function string) {
	if m == nil {
		return
	}
	m.invocationsTotal.WithLabelValues(app, function, StatusRejected).Inc()
}

// InstrumentHandler records request count and latency under a fixed route
// label, so path parameters do not explode cardinality.
func (m *Metrics) InstrumentHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
