// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

/*
Package websocket implements the realtime order-tracking core: sessions,
topic routing, the inbound command protocol and outbound event emission.

# Architecture

	HTTP GET /ws ──► Handler ──(token ok)──► Session ──► Hub.Connect
	                    │                       │
	                    └─(token bad)─► 401     ├── readPump ──► Protocol.Dispatch
	                                            └── writePump ◄── send queue ◄── Hub fan-out

	order service ──► api ──► Emitter ──► Hub.Emit ──► fan-out
	                                          └──────► Relay ──► NATS ──► other processes

The Hub is the only owner of the session registry and the topic membership
map. A single goroutine (RunWithContext) applies every join, leave, connect,
disconnect and emission, so emissions to a topic reach its members in the
order they were issued and a member present for a whole emission gets
exactly one copy.

# Topics

Every session joins user:{userId} and role:{role} on connect. Commands add
order:{orderId} and admin:all-orders:

	order:subscribe           any role            join order:{orderId}
	order:unsubscribe         any role            leave order:{orderId}
	admin:orders:subscribe    admin               join admin:all-orders
	admin:orders:unsubscribe  any role            leave admin:all-orders
	driver:location:update    driver              emit order:location:updated
	driver:status:update      driver              emit order:status:updated + notification

Role rules come from the authz package. Rejected commands produce an error
event with code FORBIDDEN or INVALID_DATA for the sender only; the
connection stays open.

# Flow Control

Each session has a bounded outbound queue. A session whose queue is full
when a frame is fanned out is disconnected instead of blocking the hub.
The writer pings every 54s; a peer that does not answer within 60s is
dropped.

# Multiple Processes

When NATS is enabled the Relay publishes every local emission and replays
other processes' emissions locally. Topic names are identical in every
process, so no translation is needed.
*/
package websocket
