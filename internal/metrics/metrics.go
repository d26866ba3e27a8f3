// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Realtime sessions and topic membership
// - Event emission and per-session delivery
// - Command errors surfaced to clients
// - Cross-process relay traffic
// - Collaborator HTTP API
// - Circuit breakers

var (
	// Session Metrics
	WSSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_sessions_active",
			Help: "Current number of connected realtime sessions",
		},
	)

	WSSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_sessions_total",
			Help: "Total number of realtime sessions established",
		},
		[]string{"role"},
	)

	WSDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_disconnects_total",
			Help: "Total number of realtime sessions closed",
		},
		[]string{"reason"}, // client_closed, read_error, slow_consumer, shutdown
	)

	WSHandshakeRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_handshake_rejected_total",
			Help: "Total number of websocket handshakes refused",
		},
		[]string{"reason"}, // no_credentials, invalid_credentials, expired_credentials, upgrade_failed
	)

	// Topic Metrics
	TopicsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_topics_active",
			Help: "Current number of topics with at least one member",
		},
	)

	// Event Metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_emitted_total",
			Help: "Total number of events emitted to a topic or session",
		},
		[]string{"event"},
	)

	EventDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Total number of event copies queued to sessions",
		},
		[]string{"event"},
	)

	CommandsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_commands_total",
			Help: "Total number of inbound commands processed",
		},
		[]string{"command"},
	)

	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_command_errors_total",
			Help: "Total number of commands answered with an error event",
		},
		[]string{"command", "code"},
	)

	// Relay Metrics
	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_messages_total",
			Help: "Total number of relay messages by direction and result",
		},
		[]string{"direction", "result"}, // direction: out, in; result: ok, error, skipped
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordSessionOpened records a newly registered session.
func RecordSessionOpened(role string) {
	WSSessionsActive.Inc()
	WSSessionsTotal.WithLabelValues(role).Inc()
}

// RecordSessionClosed records a session leaving the hub.
func RecordSessionClosed(reason string) {
	WSSessionsActive.Dec()
	WSDisconnects.WithLabelValues(reason).Inc()
}

// RecordEmission records one emission and the number of copies it produced.
func RecordEmission(event string, deliveries int) {
	EventsEmitted.WithLabelValues(event).Inc()
	if deliveries > 0 {
		EventDeliveries.WithLabelValues(event).Add(float64(deliveries))
	}
}

// RecordCommandError records a command answered with an error event.
func RecordCommandError(command, code string) {
	CommandErrors.WithLabelValues(command, code).Inc()
}

// RecordRelay records a relay publish or receive.
func RecordRelay(direction, result string) {
	RelayMessages.WithLabelValues(direction, result).Inc()
}

// RecordAPIRequest records metrics for an API request
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements active request counter
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
