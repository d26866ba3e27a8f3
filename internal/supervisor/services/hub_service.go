// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package services

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/ordertrail/internal/websocket"
)

// Hub is satisfied by *websocket.Hub.
type Hub interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the realtime hub's event loop. A hub that has already
// shut down cannot be restarted, so ErrHubStopped tells the supervisor to
// leave it alone.
type HubService struct {
	hub Hub
}

// NewHubService wraps hub.
func NewHubService(hub Hub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	err := s.hub.RunWithContext(ctx)
	if errors.Is(err, websocket.ErrHubStopped) {
		return suture.ErrDoNotRestart
	}
	return err
}

// String names the service in supervisor logs.
func (s *HubService) String() string {
	return "realtime-hub"
}
