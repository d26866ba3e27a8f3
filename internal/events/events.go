// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package events

import (
	"time"
)

// Name is an event or command name as it appears in the "event" field of a frame.
type Name string

// Server -> client events.
const (
	OrderStatusUpdated   Name = "order:status:updated"
	OrderLocationUpdated Name = "order:location:updated"
	OrderCreated         Name = "order:created"
	OrderAssigned        Name = "order:assigned"
	Notification         Name = "notification"
	Error                Name = "error"
	Pong                 Name = "pong"
)

// Client -> server commands.
const (
	CmdOrderSubscribe         Name = "order:subscribe"
	CmdOrderUnsubscribe       Name = "order:unsubscribe"
	CmdAdminOrdersSubscribe   Name = "admin:orders:subscribe"
	CmdAdminOrdersUnsubscribe Name = "admin:orders:unsubscribe"
	CmdDriverLocationUpdate   Name = "driver:location:update"
	CmdDriverStatusUpdate     Name = "driver:status:update"
	CmdPing                   Name = "ping"
)

// ErrorCode is the code carried by an error event.
type ErrorCode string

const (
	// CodeForbidden means the session's role may not run the command.
	CodeForbidden ErrorCode = "FORBIDDEN"
	// CodeInvalidData means the frame or its payload was malformed.
	CodeInvalidData ErrorCode = "INVALID_DATA"
)

// NotificationType classifies a notification for display.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Order status vocabulary used by status and previousStatus fields.
// Transition legality belongs to the order-management service; the
// realtime layer relays whatever it is given.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusPickedUp  = "picked_up"
	StatusInTransit = "in_transit"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"

	// StatusUnknown fills previousStatus when no prior status is known.
	StatusUnknown = "unknown"
)

// KnownStatuses lists the documented status vocabulary in lifecycle order.
var KnownStatuses = []string{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusPickedUp,
	StatusInTransit,
	StatusDelivered,
	StatusCancelled,
}

// IsKnownStatus reports whether s is part of the documented vocabulary.
func IsKnownStatus(s string) bool {
	for _, k := range KnownStatuses {
		if k == s {
			return true
		}
	}
	return false
}

// StatusUpdated is the order:status:updated payload.
type StatusUpdated struct {
	OrderID           string     `json:"orderId"`
	Status            string     `json:"status"`
	PreviousStatus    string     `json:"previousStatus"`
	Timestamp         time.Time  `json:"timestamp"`
	Note              string     `json:"note,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

// LocationUpdated is the order:location:updated payload.
type LocationUpdated struct {
	OrderID   string    `json:"orderId"`
	DriverID  string    `json:"driverId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Created is the order:created payload.
type Created struct {
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Assigned is the order:assigned payload.
type Assigned struct {
	OrderID           string     `json:"orderId"`
	DriverID          string     `json:"driverId"`
	DriverName        string     `json:"driverName"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

// NotificationPayload is the notification payload.
type NotificationPayload struct {
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	OrderID string           `json:"orderId,omitempty"`
}

// ErrorPayload is the error payload.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}
