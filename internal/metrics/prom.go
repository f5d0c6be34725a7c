// Package metrics exposes Prometheus collectors for the web frontend and
// installs the OpenTelemetry tracer.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raseed/internal/api"
	"raseed/internal/core"
)

const namespace = "raseed"

type Prom struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         prometheus.Gauge

	// Receipt backend
	BackendCalls    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	CacheLookups *prometheus.CounterVec

	AssistantAsks     *prometheus.CounterVec
	AssistantDuration prometheus.Histogram

	Notifications *prometheus.CounterVec
}

// New registers every collector, plus the Go and process collectors, on a
// private registry.
func New() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),
		BackendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "calls_total",
				Help:      "Receipt backend calls by operation and outcome.",
			},
			[]string{"op", "outcome"}, // outcome=ok|http_error|transport_error
		),
		BackendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "call_duration_seconds",
				Help:      "Receipt backend latency by operation.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"op"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query_cache",
				Name:      "lookups_total",
				Help:      "Query cache lookups by query and result.",
			},
			[]string{"query", "result"}, // result=hit|miss
		),
		AssistantAsks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assistant",
				Name:      "asks_total",
				Help:      "Assistant questions by origin and outcome.",
			},
			[]string{"origin", "outcome"},
		),
		AssistantDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "assistant",
				Name:      "ask_duration_seconds",
				Help:      "Time to answer a question, retries included.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "deliveries_total",
				Help:      "Notifications handed to event streams, by result.",
			},
			[]string{"result"}, // result=delivered|dropped
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.BackendCalls, p.BackendDuration,
		p.CacheLookups,
		p.AssistantAsks, p.AssistantDuration,
		p.Notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route pattern. It must
// wrap the ServeMux directly so the matched pattern is visible afterwards.
func (p *Prom) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		p.InFlight.Inc()
		defer p.InFlight.Dec()

		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		p.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		p.RequestsDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveBackendCall implements api.Observer.
func (p *Prom) ObserveBackendCall(op string, err error, elapsed time.Duration) {
	p.BackendCalls.WithLabelValues(op, backendOutcome(err)).Inc()
	p.BackendDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func backendOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return "http_error"
	}
	return "transport_error"
}

// ObserveCache implements fetch.CacheObserver.
func (p *Prom) ObserveCache(query string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.CacheLookups.WithLabelValues(query, result).Inc()
}

// ObserveAsk implements assistant.Observer.
func (p *Prom) ObserveAsk(origin core.QueryOrigin, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.AssistantAsks.WithLabelValues(string(origin), outcome).Inc()
	p.AssistantDuration.Observe(elapsed.Seconds())
}

// ObserveNotification implements notify.Observer.
func (p *Prom) ObserveNotification(delivered, dropped int) {
	p.Notifications.WithLabelValues("delivered").Add(float64(delivered))
	p.Notifications.WithLabelValues("dropped").Add(float64(dropped))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
