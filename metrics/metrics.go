// Package metrics exposes marketplace and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coai-backend/core/marketplace"
)

// Metrics owns a private registry so tests and multiple servers don't collide.
type Metrics struct {
	registry *prometheus.Registry

	taskTransitions    *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	settledAmount      *prometheus.CounterVec
	suggestionFailures prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers every collector, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		taskTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coai",
			Name:      "task_transitions_total",
			Help:      "Task status transitions.",
		}, []string{"from", "to"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coai",
			Name:      "settlements_total",
			Help:      "Settlement transactions by type and final status.",
		}, []string{"type", "status"}),
		settledAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coai",
			Name:      "settled_amount_total",
			Help:      "Amount moved by completed settlement transactions.",
		}, []string{"type"}),
		suggestionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coai",
			Name:      "ai_suggestion_failures_total",
			Help:      "Suggestion requests that failed and were swallowed.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coai",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coai",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.taskTransitions,
		m.settlements,
		m.settledAmount,
		m.suggestionFailures,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// TaskTransition implements marketplace.Recorder.
func (m *Metrics) TaskTransition(from, to marketplace.TaskStatus) {
	m.taskTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// Settlement implements marketplace.Recorder.
func (m *Metrics) Settlement(kind marketplace.TransactionType, status marketplace.TransactionStatus, amount marketplace.Money) {
	m.settlements.WithLabelValues(string(kind), string(status)).Inc()
	if status == marketplace.TxCompleted {
		m.settledAmount.WithLabelValues(string(kind)).Add(amount.Float())
	}
}

// SuggestionFailure implements marketplace.Recorder.
func (m *Metrics) SuggestionFailure() {
	m.suggestionFailures.Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
