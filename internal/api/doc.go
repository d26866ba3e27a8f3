// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

/*
Package api is the HTTP surface of the realtime server, built on chi.

The order-management service drives every server-originated event through
the collaborator endpoints; each maps onto one websocket.Emitter call:

	POST /api/v1/orders                        -> order:created (admin feed)
	POST /api/v1/orders/{orderId}/status       -> order:status:updated
	POST /api/v1/orders/{orderId}/assign       -> order:assigned + driver notification
	POST /api/v1/users/{userId}/notifications  -> notification

Collaborator calls carry a bearer token whose role is granted
"collaborator:emit" by the authorization policy (admin by default).
Bodies are decoded strictly and validated with go-playground/validator;
failures return 400 VALIDATION_FAILED with per-field details.

Every response uses one envelope:

	{"success": true,  "data": {...}, "meta": {"requestId": "...", ...}}
	{"success": false, "error": {"code": "UNAUTHORIZED", "message": "..."}, "meta": {...}}

A 202 means the event was queued on the hub; delivery to subscribers is
at-most-once and is not confirmed to the caller.
*/
package api
