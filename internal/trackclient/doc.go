// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

/*
Package trackclient is the consumer side of the realtime protocol: a
websocket client that keeps a dashboard, customer app or driver app
connected and subscribed.

# Connection Lifecycle

	idle -> connecting -> connected <-> reconnecting -> failed
	                                  \-> closed (Disconnect)

Connect dials with the bearer token in the Authorization header. A
rejected handshake (401) is terminal: the client moves to failed and
never retries. Any other failure, including a drop after a successful
connection, starts the redial sequence: exponential backoff from
Config.InitialBackoff, doubling up to Config.MaxBackoff, for at most
Config.MaxAttempts attempts. When they run out the client stays in
failed and Err reports why.

# Subscription Replay

The server forgets every membership when a connection drops. The client
remembers what the caller asked for (TrackOrder, WatchAllOrders) and
re-issues those commands after every successful connect, so callers
never resubscribe by hand.

# Listeners

Listeners are registered per event name. Registering the same *Listener
twice is a no-op; Off with a nil listener removes every listener for
the event. Decoded builds a listener that decodes the payload first:

	c := trackclient.New(trackclient.Config{URL: "wss://rt.example.com/ws", Token: token})
	updates := trackclient.Decoded(func(u events.StatusUpdated) {
		fmt.Println(u.OrderID, u.PreviousStatus, "->", u.Status)
	})
	c.On(events.OrderStatusUpdated, updates)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	_ = c.TrackOrder("ord-42")

Disconnect closes the transport and clears every listener. It waits for
a listener that is already running; no event is delivered once it has
returned, even if frames were already buffered. Listeners that want to
disconnect call go c.Disconnect().

IsConnected reflects transport health. Protocol error events (FORBIDDEN,
INVALID_DATA) are delivered to listeners on events.Error and never change the
connection state.
*/
package trackclient
