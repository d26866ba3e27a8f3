// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package events defines the realtime wire protocol: event and command
// names, payload shapes, error codes and the frame codec.
//
// Every websocket message is a JSON object with an event name and an
// optional payload:
//
//	{"event": "order:status:updated", "data": {"orderId": "o1", "status": "in_transit", ...}}
//
// Field names are camelCase and timestamps are RFC 3339 strings. Both the
// server (internal/websocket) and the client (internal/trackclient) encode
// and decode through this package.
package events
