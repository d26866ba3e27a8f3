// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package events

// OrderRef is the order:subscribe / order:unsubscribe payload. On the wire
// it may be a bare string or an object with an orderId field.
type OrderRef struct {
	OrderID string `json:"orderId" validate:"required,max=128,topic_id"`
}

// LocationUpdate is the driver:location:update payload.
// Coordinates are pointers so that a missing field can be told apart from 0.
type LocationUpdate struct {
	OrderID string   `json:"orderId" validate:"required,max=128,topic_id"`
	Lat     *float64 `json:"lat" validate:"required,finite,latitude"`
	Lng     *float64 `json:"lng" validate:"required,finite,longitude"`
	Heading *float64 `json:"heading,omitempty" validate:"omitempty,finite,gte=0,lt=360"`
	Speed   *float64 `json:"speed,omitempty" validate:"omitempty,finite,gte=0"`
}

// StatusUpdate is the driver:status:update payload.
type StatusUpdate struct {
	OrderID string `json:"orderId" validate:"required,max=128,topic_id"`
	Status  string `json:"status" validate:"required,max=64"`
	Note    string `json:"note,omitempty" validate:"max=500"`
}
