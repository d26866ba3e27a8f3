// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/orderdir"
	"github.com/tomtom215/ordertrail/internal/validation"
	"github.com/tomtom215/ordertrail/internal/websocket"
)

// Authorizer decides whether a role may perform an action.
type Authorizer interface {
	Allowed(role, action string) (bool, error)
}

// HealthCheck is one readiness dependency. Check returns nil when healthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HandlerConfig wires the handler's collaborators.
type HandlerConfig struct {
	Validator  *auth.Validator
	Authorizer Authorizer

	// Directory is told to forget an order whenever a collaborator reports
	// a change to it. Nil means orderdir.Open.
	Directory orderdir.Directory

	// Checks run on /health/ready in addition to the hub itself.
	Checks []HealthCheck

	Version string
}

// Handler serves the collaborator and operational endpoints.
type Handler struct {
	hub       *websocket.Hub
	emitter   *websocket.Emitter
	validator *auth.Validator
	authz     Authorizer
	directory orderdir.Directory
	checks    []HealthCheck
	version   string
	audit     *logging.AuditLogger
	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(hub *websocket.Hub, emitter *websocket.Emitter, cfg HandlerConfig) *Handler {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Directory == nil {
		cfg.Directory = orderdir.Open{}
	}
	return &Handler{
		hub:       hub,
		emitter:   emitter,
		validator: cfg.Validator,
		authz:     cfg.Authorizer,
		directory: cfg.Directory,
		checks:    cfg.Checks,
		version:   cfg.Version,
		audit:     logging.NewAuditLogger(),
		startTime: time.Now(),
	}
}

// bind decodes and validates a request body, writing the error response
// itself when it fails.
func bind(rp reply, w http.ResponseWriter, r *http.Request, req interface{}, fill func()) bool {
	if err := decodeJSON(w, r, req); err != nil {
		rp.fail(badRequest(err.Error()))
		return false
	}
	if fill != nil {
		fill()
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		apiErr := verr.ToAPIError()
		rp.fail(validationFailed(apiErr.Message, apiErr.Details))
		return false
	}
	return true
}

// requestLog returns the request logger tagged with the calling collaborator.
func requestLog(r *http.Request) *zerolog.Logger {
	l := logging.Ctx(r.Context())
	if id, ok := IdentityFromContext(r.Context()); ok {
		tagged := l.With().Str("collaborator", id.UserID).Logger()
		return &tagged
	}
	return l
}

// emitFailed maps a hub error to a response.
func emitFailed(rp reply, r *http.Request, err error) {
	requestLog(r).Error().Err(err).Msg("event emission failed")
	if errors.Is(err, websocket.ErrHubStopped) {
		rp.fail(unavailable("Realtime service is shutting down", nil))
		return
	}
	rp.fail(internalError("Event could not be emitted"))
}

// CreateOrder announces a new order to the admin feed.
//
// POST /api/v1/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	rp := newReply(w, r)

	var req CreateOrderRequest
	if !bind(rp, w, r, &req, nil) {
		return
	}

	created := events.Created{OrderID: req.OrderID, CustomerID: req.CustomerID, Status: req.Status}
	if req.CreatedAt != nil {
		created.CreatedAt = req.CreatedAt.UTC()
	}
	if err := h.emitter.OrderCreated(created); err != nil {
		emitFailed(rp, r, err)
		return
	}

	requestLog(r).Info().Str("order_id", req.OrderID).Msg("order created event emitted")
	rp.ok(http.StatusAccepted, map[string]string{"event": string(events.OrderCreated), "orderId": req.OrderID})
}

// ChangeStatus announces a status transition to the order's subscribers
// and the admin feed. Transition legality is the caller's concern.
//
// POST /api/v1/orders/{orderId}/status
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	rp := newReply(w, r)

	var req StatusChangeRequest
	if !bind(rp, w, r, &req, func() { req.OrderID = chi.URLParam(r, "orderId") }) {
		return
	}

	h.directory.Invalidate(req.OrderID)

	previous := req.PreviousStatus
	if previous == "" {
		if last, ok := h.emitter.LastStatus(req.OrderID); ok {
			previous = last
		}
	}

	sent, err := h.emitter.StatusChanged(events.StatusUpdated{
		OrderID:           req.OrderID,
		Status:            req.Status,
		PreviousStatus:    previous,
		Note:              req.Note,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		emitFailed(rp, r, err)
		return
	}

	requestLog(r).Info().
		Str("order_id", sent.OrderID).
		Str("status", sent.Status).
		Str("previous_status", sent.PreviousStatus).
		Msg("status change emitted")
	rp.ok(http.StatusAccepted, sent)
}

// AssignDriver announces a driver assignment and notifies the driver.
//
// POST /api/v1/orders/{orderId}/assign
func (h *Handler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	rp := newReply(w, r)

	var req AssignDriverRequest
	if !bind(rp, w, r, &req, func() { req.OrderID = chi.URLParam(r, "orderId") }) {
		return
	}

	h.directory.Invalidate(req.OrderID)

	assigned := events.Assigned{
		OrderID:           req.OrderID,
		DriverID:          req.DriverID,
		DriverName:        req.DriverName,
		EstimatedDelivery: req.EstimatedDelivery,
	}
	if err := h.emitter.DriverAssigned(assigned); err != nil {
		emitFailed(rp, r, err)
		return
	}

	requestLog(r).Info().
		Str("order_id", req.OrderID).
		Str("driver_id", req.DriverID).
		Msg("driver assignment emitted")
	rp.ok(http.StatusAccepted, assigned)
}

// Notify sends a notification to every session of a user.
//
// POST /api/v1/users/{userId}/notifications
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	rp := newReply(w, r)

	var req NotificationRequest
	if !bind(rp, w, r, &req, func() { req.UserID = chi.URLParam(r, "userId") }) {
		return
	}

	n := events.NotificationPayload{
		Type:    events.NotificationType(req.Type),
		Title:   req.Title,
		Message: req.Message,
		OrderID: req.OrderID,
	}
	if err := h.emitter.Notify(req.UserID, n); err != nil {
		emitFailed(rp, r, err)
		return
	}
	rp.ok(http.StatusAccepted, map[string]string{"event": string(events.Notification), "userId": req.UserID})
}

// Stats reports hub counts.
//
// GET /api/v1/realtime/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	newReply(w, r).ok(http.StatusOK, h.hub.Stats())
}

// HealthLive reports that the process is alive, regardless of dependencies.
//
// GET /api/v1/health/live
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	newReply(w, r).ok(http.StatusOK, map[string]interface{}{
		"alive":   true,
		"version": h.version,
		"uptime":  time.Since(h.startTime).Seconds(),
	})
}

// HealthReady reports 200 only when the hub runs and every check passes.
//
// GET /api/v1/health/ready
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rp := newReply(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{"hub": "ok"}
	ready := h.hub.Running()
	if !ready {
		components["hub"] = "stopped"
	}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			components[c.Name] = err.Error()
			ready = false
			continue
		}
		components[c.Name] = "ok"
	}

	if !ready {
		rp.fail(unavailable("Service is not ready", components))
		return
	}
	rp.ok(http.StatusOK, map[string]interface{}{"ready": true, "components": components})
}
