// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"fmt"
	"time"

	"github.com/tomtom215/ordertrail/internal/cache"
	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/topic"
)

// EmitterConfig configures an Emitter.
type EmitterConfig struct {
	// InTransitStatus is the status that always carries estimatedDelivery.
	InTransitStatus string

	// DefaultETAOffset is added to now when an in-transit update arrives
	// without an estimated delivery time.
	DefaultETAOffset time.Duration

	// StatusMemory bounds how many orders' last status is remembered.
	StatusMemory int
}

// Emitter turns order state changes into events on the right topics.
type Emitter struct {
	hub       *Hub
	inTransit string
	etaOffset time.Duration
	now       func() time.Time
	statuses  *cache.LRU[string]
}

// NewEmitter creates an emitter publishing through hub.
func NewEmitter(hub *Hub, cfg EmitterConfig) *Emitter {
	if cfg.InTransitStatus == "" {
		cfg.InTransitStatus = events.StatusInTransit
	}
	if cfg.DefaultETAOffset <= 0 {
		cfg.DefaultETAOffset = 30 * time.Minute
	}
	if cfg.StatusMemory <= 0 {
		cfg.StatusMemory = 10000
	}
	return &Emitter{
		hub:       hub,
		inTransit: cfg.InTransitStatus,
		etaOffset: cfg.DefaultETAOffset,
		now:       func() time.Time { return time.Now().UTC() },
		statuses:  cache.NewLRU[string](cfg.StatusMemory, 24*time.Hour),
	}
}

// OrderCreated announces a new order on the admin feed only.
func (e *Emitter) OrderCreated(c events.Created) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = e.now()
	}
	if c.Status == "" {
		c.Status = events.StatusPending
	}
	if err := e.hub.Emit(events.OrderCreated, c, topic.AdminAllOrders); err != nil {
		return err
	}
	e.statuses.Add(c.OrderID, c.Status)
	return nil
}

// StatusChanged announces a status change on the order topic and the admin
// feed and returns the payload as sent.
//
// The in-transit status always carries estimatedDelivery: the caller's
// value if given, otherwise now plus the configured offset. Any other
// status carries exactly what the caller supplied.
func (e *Emitter) StatusChanged(u events.StatusUpdated) (events.StatusUpdated, error) {
	orderTopic, err := topic.ForOrder(u.OrderID)
	if err != nil {
		return u, err
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = e.now()
	}
	if u.PreviousStatus == "" {
		u.PreviousStatus = events.StatusUnknown
	}
	if u.Status == e.inTransit && u.EstimatedDelivery == nil {
		eta := e.now().Add(e.etaOffset)
		u.EstimatedDelivery = &eta
	}

	if err := e.hub.Emit(events.OrderStatusUpdated, u, orderTopic, topic.AdminAllOrders); err != nil {
		return u, err
	}
	e.statuses.Add(u.OrderID, u.Status)
	return u, nil
}

// DriverAssigned announces the assignment on the order topic and sends the
// driver a direct notification.
func (e *Emitter) DriverAssigned(a events.Assigned) error {
	orderTopic, err := topic.ForOrder(a.OrderID)
	if err != nil {
		return err
	}
	driverTopic, err := topic.ForUser(a.DriverID)
	if err != nil {
		return err
	}

	if err := e.hub.Emit(events.OrderAssigned, a, orderTopic); err != nil {
		return err
	}
	return e.hub.Emit(events.Notification, events.NotificationPayload{
		Type:    events.NotifyInfo,
		Title:   "New delivery assigned",
		Message: fmt.Sprintf("Order %s has been assigned to you", a.OrderID),
		OrderID: a.OrderID,
	}, driverTopic)
}

// LocationUpdated relays a driver position to the order topic and the
// admin feed.
func (e *Emitter) LocationUpdated(l events.LocationUpdated) error {
	orderTopic, err := topic.ForOrder(l.OrderID)
	if err != nil {
		return err
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = e.now()
	}
	return e.hub.Emit(events.OrderLocationUpdated, l, orderTopic, topic.AdminAllOrders)
}

// Notify sends a notification to every session of userID.
func (e *Emitter) Notify(userID string, n events.NotificationPayload) error {
	userTopic, err := topic.ForUser(userID)
	if err != nil {
		return err
	}
	if n.Type == "" {
		n.Type = events.NotifyInfo
	}
	return e.hub.Emit(events.Notification, n, userTopic)
}

// LastStatus returns the most recent status this process announced for
// the order.
func (e *Emitter) LastStatus(orderID string) (string, bool) {
	return e.statuses.Get(orderID)
}

// RememberStatus records a status announced by another process.
func (e *Emitter) RememberStatus(orderID, status string) {
	if orderID != "" && status != "" {
		e.statuses.Add(orderID, status)
	}
}
