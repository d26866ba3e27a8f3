// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/ordertrail/internal/logging"
)

// EmbeddedNATS is an in-process NATS server for single-node deployments
// and development, so the relay can run without external infrastructure.
type EmbeddedNATS struct {
	mu     sync.Mutex
	server *server.Server
	port   int
}

// NewEmbeddedNATS creates an embedded server listening on 127.0.0.1:port.
// Port -1 picks a random port.
func NewEmbeddedNATS(port int) *EmbeddedNATS {
	return &EmbeddedNATS{port: port}
}

// String names the service in supervisor logs.
func (e *EmbeddedNATS) String() string {
	return "embedded-nats"
}

// Start boots the server and waits until it accepts connections.
func (e *EmbeddedNATS) Start() error {
	opts := &server.Options{
		ServerName: "ordertrail-relay",
		Host:       "127.0.0.1",
		Port:       e.port,
		NoSigs:     true,
		NoLog:      true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return fmt.Errorf("NATS server not ready within timeout")
	}
	e.mu.Lock()
	e.server = ns
	e.mu.Unlock()
	logging.Info().Str("url", ns.ClientURL()).Msg("embedded NATS server started")
	return nil
}

// ClientURL returns the connection URL for clients.
func (e *EmbeddedNATS) ClientURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server == nil {
		return ""
	}
	return e.server.ClientURL()
}

// Serve implements suture.Service, starting the server if needed.
func (e *EmbeddedNATS) Serve(ctx context.Context) error {
	if !e.IsRunning() {
		if err := e.Start(); err != nil {
			return err
		}
	}
	<-ctx.Done()

	e.mu.Lock()
	ns := e.server
	e.server = nil
	e.mu.Unlock()
	ns.Shutdown()
	ns.WaitForShutdown()
	return ctx.Err()
}

// IsRunning reports server health.
func (e *EmbeddedNATS) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.server != nil && e.server.Running()
}
