// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

/*
Package main is the entry point for the ordertrail realtime server.

Ordertrail pushes order status changes, driver positions and personal
notifications to authenticated websocket clients. Customers track their
own orders, drivers report positions and status, administrators watch the
whole fleet. The order-management service announces changes through the
collaborator API under /api/v1.

# Supervisor Tree

	ordertrail
	├── broker-layer
	│   └── embedded-nats      NATS_EMBEDDED=true
	├── realtime-layer
	│   ├── realtime-hub
	│   └── nats-relay         NATS_ENABLED=true
	└── api-layer
	    └── http-server        /ws, /api/v1, /metrics

# Configuration

Configuration is layered with koanf (defaults, then config.yaml, then
environment). A .env file is loaded into the environment first.

	JWT_SECRET                 HS256 secret of the identity provider (required)
	HTTP_HOST, HTTP_PORT       listen address (0.0.0.0:8080)
	CORS_ORIGINS               comma-separated browser origins, "*" for any
	ENVIRONMENT                development | staging | production
	WS_SEND_BUFFER             per-session outbound queue (256)
	WS_PONG_WAIT               keepalive window (60s)
	IN_TRANSIT_STATUS          status that always carries an ETA (in_transit)
	DEFAULT_ETA_OFFSET         ETA offset when none is given (30m)
	NATS_ENABLED, NATS_URL     cross-process relay
	NATS_EMBEDDED              run nats-server in-process
	ORDER_DIRECTORY_ENABLED    ownership checks against the order service
	ORDER_DIRECTORY_URL
	LOG_LEVEL, LOG_FORMAT      zerolog level and json | console

# Signals

SIGINT and SIGTERM cancel the tree. Websocket sessions are closed, the
relay drains, and the HTTP server finishes in-flight requests within
SHUTDOWN_TIMEOUT.
*/
package main
