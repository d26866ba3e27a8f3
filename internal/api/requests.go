// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// maxBodyBytes caps collaborator request bodies.
const maxBodyBytes = 64 * 1024

// CreateOrderRequest is the body of POST /api/v1/orders.
//
// Fields:
//   - OrderID: order identifier, usable in a topic name
//   - CustomerID: owning customer
//   - Status: initial status (default: pending)
//   - CreatedAt: creation time (default: now)
type CreateOrderRequest struct {
	OrderID    string     `json:"orderId" validate:"required,max=128,topic_id"`
	CustomerID string     `json:"customerId" validate:"required,max=128,topic_id"`
	Status     string     `json:"status,omitempty" validate:"omitempty,max=64"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// StatusChangeRequest is the body of POST /api/v1/orders/{orderId}/status.
// OrderID comes from the path.
type StatusChangeRequest struct {
	OrderID           string     `json:"-" validate:"required,max=128,topic_id"`
	Status            string     `json:"status" validate:"required,max=64"`
	PreviousStatus    string     `json:"previousStatus,omitempty" validate:"omitempty,max=64"`
	Note              string     `json:"note,omitempty" validate:"max=500"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

// AssignDriverRequest is the body of POST /api/v1/orders/{orderId}/assign.
type AssignDriverRequest struct {
	OrderID           string     `json:"-" validate:"required,max=128,topic_id"`
	DriverID          string     `json:"driverId" validate:"required,max=128,topic_id"`
	DriverName        string     `json:"driverName" validate:"required,max=200"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

// NotificationRequest is the body of POST /api/v1/users/{userId}/notifications.
type NotificationRequest struct {
	UserID  string `json:"-" validate:"required,max=128,topic_id"`
	Type    string `json:"type,omitempty" validate:"omitempty,oneof=info success warning error"`
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=2000"`
	OrderID string `json:"orderId,omitempty" validate:"omitempty,max=128,topic_id"`
}

var errEmptyBody = errors.New("request body is required")

// decodeJSON strictly decodes a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
