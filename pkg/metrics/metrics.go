// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal counts processed conversation turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railbot_turns_total",
			Help: "Conversation turns processed",
		},
		[]string{"channel", "phase", "outcome"},
	)

	// TurnDuration tracks end-to-end turn latency including persistence.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "railbot_turn_duration_seconds",
			Help:    "Conversation turn duration in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// MeaningScore observes the meaning score of inbound messages.
	MeaningScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "railbot_meaning_score",
			Help:    "Meaning score of inbound messages",
			Buckets: []float64{0, 5, 10, 30, 35, 60, 70, 75, 90},
		},
	)

	// CasesOpened counts cases opened by type.
	CasesOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railbot_cases_opened_total",
			Help: "Cases opened by type",
		},
		[]string{"case_type"},
	)

	// TicketsCreated counts tickets created by case type.
	TicketsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railbot_tickets_created_total",
			Help: "Tickets created by case type",
		},
		[]string{"case_type"},
	)

	// AngryMessages counts messages flagged as aggressive or flooding.
	AngryMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railbot_angry_messages_total",
			Help: "Inbound messages flagged as aggressive",
		},
		[]string{"channel"},
	)

	// OutboxDeliveries counts outbound delivery attempts by kind and result.
	OutboxDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railbot_outbox_deliveries_total",
			Help: "Outbox delivery attempts",
		},
		[]string{"kind", "status"},
	)

	// EventPublishFailures counts NATS mirror publishes that failed.
	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railbot_event_publish_failures_total",
			Help: "Failed event stream publishes",
		},
		[]string{"kind"},
	)

	// SSEConnectionsActive tracks open ticket event streams.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "railbot_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurn records the outcome of one conversation turn.
func RecordTurn(channel, phase, outcome string, score int, duration float64) {
	TurnsTotal.WithLabelValues(channel, phase, outcome).Inc()
	TurnDuration.Observe(duration)
	if outcome != "error" {
		MeaningScore.Observe(float64(score))
	}
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
