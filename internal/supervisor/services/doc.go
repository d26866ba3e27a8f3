// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

/*
Package services adapts ordertrail components to suture's Serve pattern.

	HTTPServerService   binds the listener and drives *http.Server with
	                    graceful Shutdown on context cancellation
	HubService          runs websocket.Hub.RunWithContext; a hub that has
	                    already shut down is not restarted

The NATS relay and the embedded NATS server implement suture.Service
themselves and are added to the tree directly.
*/
package services
