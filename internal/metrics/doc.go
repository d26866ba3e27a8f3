// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package metrics defines the Prometheus collectors exported on /metrics.
//
// Collectors are package-level globals registered through promauto, so
// importing the package is enough to expose them. Helper functions wrap the
// common label combinations.
//
// # Realtime
//
//	ws_sessions_active                       gauge
//	ws_sessions_total{role}                  counter
//	ws_disconnects_total{reason}             counter
//	ws_handshake_rejected_total{reason}      counter
//	realtime_topics_active                   gauge
//	realtime_events_emitted_total{event}     counter
//	realtime_deliveries_total{event}         counter
//	realtime_commands_total{command}         counter
//	realtime_command_errors_total{command,code}
//	realtime_relay_messages_total{direction,result}
//
// # API and resilience
//
//	api_requests_total, api_request_duration_seconds, api_active_requests
//	circuit_breaker_state, circuit_breaker_requests_total,
//	circuit_breaker_consecutive_failures, circuit_breaker_state_transitions_total
package metrics
