// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

/*
Package supervisor runs ordertrail's long-lived services under a suture v4
tree with restart, backoff and graceful shutdown.

# Layout

	ordertrail
	├── broker-layer
	│   └── embedded-nats      (NATS_EMBEDDED_SERVER)
	├── realtime-layer
	│   ├── realtime-hub
	│   └── nats-relay         (NATS_ENABLED)
	└── api-layer
	    └── http-server

The broker layer is started first, but nothing waits on it: the relay
retries its initial connect, so ordering within the tree is not a
correctness requirement.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddRealtimeService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, addr, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("supervisor exited")
	}

Supervisor events (service failures, restarts, backoff) go through
sutureslog into the zerolog stream via logging.NewSlogLogger.
*/
package supervisor
