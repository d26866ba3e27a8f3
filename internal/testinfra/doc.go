// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package testinfra provides shared helpers for package tests:
//
//   - SignToken mints HS256 bearer tokens the credential validator accepts
//   - WSConn wraps a gorilla websocket client with frame send/expect helpers
//   - MockOrderService is an httptest order-management service
//   - StartNATSServer runs an in-process nats-server on a random port
//
// Nothing here is used outside tests.
package testinfra
