// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/ordertrail/internal/api"
	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/authz"
	"github.com/tomtom215/ordertrail/internal/config"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/orderdir"
	"github.com/tomtom215/ordertrail/internal/websocket"
)

// app holds the wired components that the supervisor tree runs.
type app struct {
	hub      *websocket.Hub
	emitter  *websocket.Emitter
	relay    *websocket.Relay
	broker   *websocket.EmbeddedNATS
	enforcer *authz.Enforcer
	router   http.Handler
}

// buildApp wires credentials, authorization, the order directory, the hub
// and both HTTP surfaces from cfg. Nothing is started.
func buildApp(cfg *config.Config, version string) (*app, error) {
	validator, err := auth.NewValidator(cfg.Security.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("credential validator: %w", err)
	}

	enforcer, err := authz.NewEnforcer(&authz.EnforcerConfig{
		ModelPath:    cfg.Security.Casbin.ModelPath,
		PolicyPath:   cfg.Security.Casbin.PolicyPath,
		CacheEnabled: cfg.Security.Casbin.CacheEnabled,
		CacheTTL:     cfg.Security.Casbin.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("command authorizer: %w", err)
	}

	directory, dirCheck, err := buildDirectory(&cfg.OrderDirectory)
	if err != nil {
		enforcer.Close()
		return nil, err
	}

	a := &app{enforcer: enforcer}
	a.hub = websocket.NewHub(cfg.Realtime.EmitBuffer)
	a.emitter = websocket.NewEmitter(a.hub, websocket.EmitterConfig{
		InTransitStatus:  cfg.Realtime.InTransitStatus,
		DefaultETAOffset: cfg.Realtime.DefaultETAOffset,
	})

	protocol := websocket.NewProtocol(a.hub, a.emitter, websocket.ProtocolConfig{
		Authorizer:    enforcer,
		Directory:     directory,
		LookupTimeout: cfg.OrderDirectory.Timeout,
		Audit:         logging.NewAuditLogger(),
	})
	ws := websocket.NewHandler(a.hub, validator, protocol, websocket.HandlerConfig{
		Session: websocket.SessionConfig{
			SendBuffer:     cfg.Realtime.SendBuffer,
			MaxMessageSize: cfg.Realtime.MaxMessageSize,
			PongWait:       cfg.Realtime.PongWait,
			WriteWait:      cfg.Realtime.WriteWait,
		},
		AllowedOrigins: cfg.Security.CORSOrigins,
	})

	var checks []api.HealthCheck
	if dirCheck != nil {
		checks = append(checks, *dirCheck)
	}
	if cfg.NATS.Enabled {
		a.broker, a.relay = buildRelay(&cfg.NATS, a.hub, a.emitter)
		checks = append(checks, api.HealthCheck{Name: "nats", Check: a.relay.Check})
	}

	handler := api.NewHandler(a.hub, a.emitter, api.HandlerConfig{
		Validator:  validator,
		Authorizer: enforcer,
		Directory:  directory,
		Checks:     checks,
		Version:    version,
	})
	a.router = api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.Security.CORSOrigins,
		WebSocket:   ws,
	})
	return a, nil
}

// Close releases resources that outlive the supervisor tree.
func (a *app) Close() {
	if a.enforcer != nil {
		a.enforcer.Close()
		a.enforcer = nil
	}
}

// buildDirectory returns the order directory and, for a remote one, a
// readiness check that fails while its circuit is open.
func buildDirectory(cfg *config.OrderDirectoryConfig) (orderdir.Directory, *api.HealthCheck, error) {
	if !cfg.Enabled {
		logging.Info().Msg("Order directory disabled; order:subscribe is not ownership-checked")
		return orderdir.Open{}, nil, nil
	}

	dir, err := orderdir.NewHTTPDirectory(orderdir.HTTPConfig{
		BaseURL:      cfg.URL,
		ServiceToken: cfg.ServiceToken,
		Timeout:      cfg.Timeout,
		CacheTTL:     cfg.CacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("order directory: %w", err)
	}
	logging.Info().Str("url", cfg.URL).Msg("Order directory enabled")

	check := &api.HealthCheck{Name: "order_directory", Check: func(context.Context) error {
		if state := dir.BreakerState(); state == "open" {
			return errors.New("circuit open")
		}
		return nil
	}}
	return dir, check, nil
}

// buildRelay creates the NATS relay and, when requested, the embedded
// server it connects to.
func buildRelay(cfg *config.NATSConfig, hub *websocket.Hub, emitter *websocket.Emitter) (*websocket.EmbeddedNATS, *websocket.Relay) {
	url := cfg.URL
	var broker *websocket.EmbeddedNATS
	if cfg.EmbeddedServer {
		broker = websocket.NewEmbeddedNATS(cfg.EmbeddedPort)
		url = fmt.Sprintf("nats://127.0.0.1:%d", cfg.EmbeddedPort)
	}

	relay := websocket.NewRelay(hub, emitter, websocket.RelayConfig{
		URL:                url,
		Subject:            cfg.Subject(),
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerTimeout:     cfg.BreakerTimeout,
	})
	logging.Info().
		Str("url", url).
		Str("subject", cfg.Subject()).
		Bool("embedded", cfg.EmbeddedServer).
		Msg("NATS relay enabled")
	return broker, relay
}
