// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/metrics"
	"github.com/tomtom215/ordertrail/internal/topic"
)

// HandlerConfig configures the handshake endpoint.
type HandlerConfig struct {
	Session SessionConfig

	// AllowedOrigins lists browser origins that may connect; "*" allows any.
	// Requests without an Origin header (native clients) are accepted.
	AllowedOrigins []string
}

// Handler upgrades authenticated requests to realtime sessions.
//
// The token is validated before the upgrade. A request without a valid
// token gets 401 and a JSON error body, and no session is created.
type Handler struct {
	hub       *Hub
	validator *auth.Validator
	protocol  *Protocol
	cfg       HandlerConfig
	upgrader  websocket.Upgrader
	audit     *logging.AuditLogger
}

// NewHandler creates the handshake handler.
func NewHandler(hub *Hub, validator *auth.Validator, protocol *Protocol, cfg HandlerConfig) *Handler {
	if cfg.Session.MaxMessageSize <= 0 || cfg.Session.PongWait <= 0 || cfg.Session.WriteWait <= 0 {
		cfg.Session = DefaultSessionConfig()
	}
	h := &Handler{
		hub:       hub,
		validator: validator,
		protocol:  protocol,
		cfg:       cfg,
		audit:     logging.NewAuditLogger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

type handshakeError struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeHandshakeError(w http.ResponseWriter, status int, code, message string) {
	var body handshakeError
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Running() {
		writeHandshakeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Realtime service unavailable")
		return
	}

	id, err := h.validator.Authenticate(r)
	if err == nil {
		// The user id must be usable in a topic name.
		if _, terr := topic.ForUser(id.UserID); terr != nil {
			err = &auth.AuthenticationError{Kind: auth.ErrInvalidCredentials, Cause: terr}
		}
	}
	if err != nil {
		reason := "invalid_credentials"
		var authErr *auth.AuthenticationError
		if errors.As(err, &authErr) {
			reason = authErr.Reason()
		}
		metrics.WSHandshakeRejected.WithLabelValues(reason).Inc()
		h.audit.LogHandshakeRejected(clientIP(r), r.UserAgent(), reason)
		writeHandshakeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		metrics.WSHandshakeRejected.WithLabelValues("upgrade_failed").Inc()
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := NewSession(conn, *id, h.cfg.Session)
	if err := h.hub.Connect(s); err != nil {
		logging.Warn().Err(err).Msg("websocket session could not be registered")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "service stopping"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	s.Start(h.protocol.Dispatch)
}

// checkOrigin accepts native clients (no Origin) and configured origins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().
		Str("origin", logging.SanitizeValue("origin", origin)).
		Msg("websocket connection rejected from unauthorized origin")
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
