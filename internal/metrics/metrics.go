// Package metrics defines the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lending outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeConflict   = "conflict"
	OutcomeNotFound   = "not_found"
	OutcomeValidation = "validation"
	OutcomeError      = "error"
)

// Metrics holds the collectors, registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	lendingOps      *prometheus.CounterVec
	booksRegistered prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		lendingOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holocron",
			Name:      "lending_operations_total",
			Help:      "Borrow and return requests by outcome.",
		}, []string{"op", "outcome"}),
		booksRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "holocron",
			Name:      "books_registered_total",
			Help:      "Books added to the shelf.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "holocron",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	reg.MustRegister(
		m.lendingOps,
		m.booksRegistered,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveLending counts one borrow or return with its outcome.
func (m *Metrics) ObserveLending(op, outcome string) {
	m.lendingOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveRegistration() {
	m.booksRegistered.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument records the latency of every request to next under route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.requestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
