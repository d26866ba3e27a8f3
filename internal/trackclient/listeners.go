// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package trackclient

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/logging"
)

// Listener receives frames for the events it is registered on. Identity
// is the pointer, so registering the same Listener twice is a no-op.
type Listener struct {
	handle func(events.Frame)
}

// NewListener wraps fn as a Listener.
func NewListener(fn func(events.Frame)) *Listener {
	return &Listener{handle: fn}
}

// On registers l for event. A listener already registered for event is
// not added again.
func (c *Client) On(event events.Name, l *Listener) {
	if l == nil || l.handle == nil || c.closed.Load() {
		return
	}
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	for _, existing := range c.listeners[event] {
		if existing == l {
			return
		}
	}
	c.listeners[event] = append(c.listeners[event], l)
}

// Off removes l from event. A nil l removes every listener for event.
func (c *Client) Off(event events.Name, l *Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	if l == nil {
		delete(c.listeners, event)
		return
	}
	current := c.listeners[event]
	kept := make([]*Listener, 0, len(current))
	for _, existing := range current {
		if existing != l {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(c.listeners, event)
		return
	}
	c.listeners[event] = kept
}

// ListenerCount returns how many listeners are registered for event.
func (c *Client) ListenerCount(event events.Name) int {
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	return len(c.listeners[event])
}

// Decoded wraps fn as a Listener that first decodes the frame payload
// into T. Frames whose payload does not decode are logged and dropped.
// Like NewListener, every call returns a distinct Listener; keep the
// result to register it idempotently or to pass it to Off.
//
//	updates := trackclient.Decoded(func(u events.StatusUpdated) { ... })
//	c.On(events.OrderStatusUpdated, updates)
func Decoded[T any](fn func(T)) *Listener {
	return NewListener(func(f events.Frame) {
		var v T
		if err := json.Unmarshal(f.Data, &v); err != nil {
			logging.Warn().Err(err).Str("event", string(f.Event)).Msg("dropping event with undecodable payload")
			return
		}
		fn(v)
	})
}

// deliver runs the listeners registered for f.Event. Each listener runs
// under deliverMu after re-checking closed, so once Disconnect has taken
// deliverMu no listener starts again.
func (c *Client) deliver(f events.Frame) {
	c.listenersMu.RLock()
	ls := append([]*Listener(nil), c.listeners[f.Event]...)
	c.listenersMu.RUnlock()

	for _, l := range ls {
		if !c.deliverOne(l, f) {
			return
		}
	}
}

func (c *Client) deliverOne(l *Listener, f events.Frame) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if c.closed.Load() {
		return false
	}
	c.invoke(l, f)
	return true
}

func (c *Client) invoke(l *Listener, f events.Frame) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("event", string(f.Event)).
				Interface("panic", r).
				Msg("recovered panic in event listener")
		}
	}()
	l.handle(f)
}
