// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package config loads and validates Ordertrail configuration.
//
// Configuration is layered with Koanf v2, later layers overriding earlier ones:
//
//  1. Struct defaults (defaultConfig)
//  2. Optional YAML file: $CONFIG_PATH, config.yaml, /etc/ordertrail/config.yaml
//  3. Environment variables, through an explicit mapping table
//
// A .env file in the working directory (or $DOTENV_PATH) is read into the
// process environment before layer 3. Variables already set take precedence.
//
// # Environment Variables
//
//	HTTP_PORT, HTTP_HOST, HTTP_TIMEOUT, SHUTDOWN_TIMEOUT, ENVIRONMENT
//	JWT_SECRET (required, >= 32 chars), CORS_ORIGINS (comma-separated)
//	CASBIN_MODEL_PATH, CASBIN_POLICY_PATH, CASBIN_CACHE_ENABLED, CASBIN_CACHE_TTL
//	WS_SEND_BUFFER, WS_EMIT_BUFFER, WS_MAX_MESSAGE_SIZE, WS_PONG_WAIT, WS_WRITE_WAIT
//	IN_TRANSIT_STATUS (default in_transit), DEFAULT_ETA_OFFSET (default 30m)
//	NATS_ENABLED, NATS_URL, NATS_EMBEDDED, NATS_EMBEDDED_PORT, NATS_SUBJECT_PREFIX
//	NATS_BREAKER_MAX_FAILURES, NATS_BREAKER_TIMEOUT
//	ORDER_DIRECTORY_ENABLED, ORDER_DIRECTORY_URL, ORDER_DIRECTORY_TOKEN,
//	ORDER_DIRECTORY_TIMEOUT, ORDER_DIRECTORY_CACHE_TTL
//	LOG_LEVEL, LOG_FORMAT, LOG_CALLER
//
// Unmapped environment variables are ignored.
package config
