// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package logging provides centralized zerolog-based structured logging for Ordertrail.
//
// JSON output is the default and is meant for production. Console output is
// human-readable and meant for development.
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("session_id", id).Msg("session connected")
//	logging.Error().Err(err).Str("topic", string(t)).Msg("relay publish failed")
//
//	// Context-aware logging
//	logging.Ctx(ctx).Info().Msg("order subscribed")
//
// # Configuration
//
// Environment Variables (mapped through internal/config):
//
//	LOG_LEVEL   - Minimum log level: trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - Output format: json, console (default: json)
//	LOG_CALLER  - Include caller file:line: true, false (default: false)
//
// # Suture Integration
//
// The supervisor tree takes a *slog.Logger. NewSlogLogger returns one that
// writes through the global zerolog logger:
//
//	slogger := logging.NewSlogLogger()
//	tree, err := supervisor.NewSupervisorTree(slogger, cfg)
//
// # Audit Logging
//
// AuditLogger records handshake rejections, session lifecycle and refused
// commands. User ids, emails and credential-like values are masked before
// they are written.
//
// # Testing
//
//	func init() {
//	    logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
//	}
package logging
