// Package metrics provides Prometheus metrics for procbot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	TransitionsTotal *prometheus.CounterVec
	StoreOpsTotal    *prometheus.CounterVec
	ChatTurnsTotal   *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procbot_requests_total",
				Help: "Total number of HTTP requests by route and status.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "procbot_request_duration_seconds",
				Help:    "Request processing duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procbot_workflow_transitions_total",
				Help: "Total workflow transitions by action and result.",
			},
			[]string{"action", "result"},
		),
		StoreOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procbot_store_operations_total",
				Help: "Total project store operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		ChatTurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procbot_chat_turns_total",
				Help: "Total chat turns by agent.",
			},
			[]string{"agent"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procbot_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.TransitionsTotal)
	reg.MustRegister(m.StoreOpsTotal)
	reg.MustRegister(m.ChatTurnsTotal)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// RecordTransition increments the workflow transition counter.
func (m *Metrics) RecordTransition(action, result string) {
	m.TransitionsTotal.WithLabelValues(action, result).Inc()
}

// RecordStoreOp increments the store operation counter.
func (m *Metrics) RecordStoreOp(op, result string) {
	m.StoreOpsTotal.WithLabelValues(op, result).Inc()
}

// RecordChatTurn increments the chat turn counter.
func (m *Metrics) RecordChatTurn(agent string) {
	m.ChatTurnsTotal.WithLabelValues(agent).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
