// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/ordertrail/internal/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// CORSOrigins are the origins allowed to call the collaborator API from
	// a browser. Empty means same-origin only.
	CORSOrigins []string

	// WebSocket serves the GET /ws handshake.
	WebSocket http.Handler
}

// NewRouter builds the HTTP surface:
//
//	GET  /ws                                    realtime handshake
//	GET  /api/v1/health/live                    liveness
//	GET  /api/v1/health/ready                   readiness
//	GET  /api/v1/realtime/stats                 hub counts (collaborator)
//	POST /api/v1/orders                         order:created
//	POST /api/v1/orders/{orderId}/status        order:status:updated
//	POST /api/v1/orders/{orderId}/assign        order:assigned + driver notification
//	POST /api/v1/users/{userId}/notifications   notification
//	GET  /metrics                               prometheus
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		newReply(w, r).fail(problem{status: http.StatusNotFound, code: ErrCodeNotFound, message: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		newReply(w, r).fail(problem{status: http.StatusMethodNotAllowed, code: ErrCodeMethodNotAllowed, message: "Method not allowed"})
	})

	if cfg.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", cfg.WebSocket)
	}
	r.Handle("/metrics", promhttp.Handler())

	corsOpts := cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	}
	if len(cfg.CORSOrigins) == 0 {
		// go-chi/cors treats an empty list as "*".
		corsOpts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(corsOpts))

		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireCollaborator)

			r.Get("/realtime/stats", h.Stats)
			r.Post("/orders", h.CreateOrder)
			r.Post("/orders/{orderId}/status", h.ChangeStatus)
			r.Post("/orders/{orderId}/assign", h.AssignDriver)
			r.Post("/users/{userId}/notifications", h.Notify)
		})
	})

	return r
}
