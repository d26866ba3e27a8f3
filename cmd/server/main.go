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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/ordertrail/internal/config"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/supervisor"
	"github.com/tomtom215/ordertrail/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "ordertrail",
		Version:   version,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("order_directory_enabled", cfg.OrderDirectory.Enabled).
		Msg("Starting ordertrail")
	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS_ORIGINS allows any origin")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	rt, err := buildApp(cfg, version)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize realtime stack")
	}
	defer rt.Close()

	if rt.broker != nil {
		tree.AddBrokerService(rt.broker)
	}
	tree.AddRealtimeService(services.NewHubService(rt.hub))
	if rt.relay != nil {
		tree.AddRealtimeService(rt.relay)
	}

	server := &http.Server{
		Handler:           rt.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	tree.AddAPIService(services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", addr).Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Ordertrail stopped")
	if len(unstopped) > 0 {
		rt.Close()
		os.Exit(1)
	}
}
