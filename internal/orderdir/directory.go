// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package orderdir answers the two questions the realtime core may need to
// ask the order-management service: what an order's current status is, and
// whether an identity may track it.
package orderdir

import (
	"context"
	"errors"

	"github.com/tomtom215/ordertrail/internal/auth"
)

// ErrOrderNotFound is returned when the order-management service does not
// know the order.
var ErrOrderNotFound = errors.New("order not found")

// Directory looks up order facts owned by the order-management service.
type Directory interface {
	// CurrentStatus returns the order's status as last persisted.
	CurrentStatus(ctx context.Context, orderID string) (string, error)

	// CanTrack reports whether id may subscribe to the order's topic.
	CanTrack(ctx context.Context, orderID string, id *auth.Identity) (bool, error)

	// Invalidate discards anything remembered about the order. Callers
	// use it when the order-management service reports a change.
	Invalidate(orderID string)
}

// Order is the subset of the order record used by the directory.
type Order struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	DriverID   string `json:"driverId,omitempty"`
	Status     string `json:"status"`
}

// TrackableBy reports whether id is the order's customer, its assigned
// driver, or an admin.
func (o *Order) TrackableBy(id *auth.Identity) bool {
	if id == nil {
		return false
	}
	switch {
	case id.Role == auth.RoleAdmin:
		return true
	case o.CustomerID != "" && o.CustomerID == id.UserID:
		return true
	case o.DriverID != "" && o.DriverID == id.UserID:
		return true
	default:
		return false
	}
}

// Open is the directory used when no order-management service is
// configured: every session may track every order and no status is known.
type Open struct{}

// CurrentStatus always returns ErrOrderNotFound.
func (Open) CurrentStatus(context.Context, string) (string, error) {
	return "", ErrOrderNotFound
}

// CanTrack always allows.
func (Open) CanTrack(context.Context, string, *auth.Identity) (bool, error) {
	return true, nil
}

// Invalidate does nothing; Open remembers nothing.
func (Open) Invalidate(string) {}
