// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

/*
Package middleware provides the HTTP middleware shared by every route.

Key Components:

  - Request ID: UUID-based request tracking, surfaced in X-Request-ID and
    in the logging context (logging.Ctx picks it up)
  - Prometheus Metrics: request count, latency and in-flight gauge keyed
    by chi route pattern

Both are chi-compatible (func(http.Handler) http.Handler):

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

The metrics wrapper implements http.Hijacker, so the websocket handshake
route can sit behind it.
*/
package middleware
