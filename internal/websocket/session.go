// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/topic"
)

// SessionConfig holds per-connection limits and timeouts.
type SessionConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	PongWait       time.Duration
	WriteWait      time.Duration
}

// DefaultSessionConfig returns the standard limits: 256 queued frames,
// 64 KB inbound frames, 60s pong wait, 10s write wait.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SendBuffer:     256,
		MaxMessageSize: 64 * 1024,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

func (c SessionConfig) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Session is one authenticated connection.
//
// Identity never changes. topics and closed belong to the hub goroutine;
// send is written only by the hub and closed only by the hub.
type Session struct {
	id          string
	identity    auth.Identity
	connectedAt time.Time
	remoteAddr  string

	conn *websocket.Conn
	cfg  SessionConfig
	send chan []byte
	hub  *Hub

	topics map[topic.Topic]struct{}
	closed bool
}

// NewSession wraps an upgraded connection. conn may be nil in tests that
// drive the hub directly.
func NewSession(conn *websocket.Conn, id auth.Identity, cfg SessionConfig) *Session {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSessionConfig().SendBuffer
	}
	s := &Session{
		id:          newSessionID(),
		identity:    id,
		connectedAt: time.Now().UTC(),
		conn:        conn,
		cfg:         cfg,
		send:        make(chan []byte, cfg.SendBuffer),
		topics:      make(map[topic.Topic]struct{}),
	}
	if conn != nil {
		s.remoteAddr = conn.RemoteAddr().String()
	}
	return s
}

// newSessionID returns a time-ordered UUID so that sorting by id
// approximates connection order.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Identity returns the authenticated identity.
func (s *Session) Identity() auth.Identity { return s.identity }

// ConnectedAt returns when the session was created.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Start runs the read and write pumps. The read pump hands every inbound
// frame to dispatch and disconnects the session when the connection ends.
func (s *Session) Start(dispatch func(ctx context.Context, s *Session, raw []byte)) {
	go s.writePump()
	go s.readPump(dispatch)
}

func (s *Session) readPump(dispatch func(ctx context.Context, s *Session, raw []byte)) {
	ctx, cancel := context.WithCancel(logging.ContextWithSessionID(context.Background(), s.id))
	reason := ReasonReadError
	defer func() {
		cancel()
		s.hub.Disconnect(s, reason)
		_ = s.conn.Close() // best-effort cleanup
	}()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = ReasonClientClosed
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Ctx(ctx).Warn().Err(err).Msg("unexpected websocket close error")
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		dispatch(ctx, s, raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = s.conn.Close() // best-effort cleanup
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				// The hub closed the queue.
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Str("session_id", s.id).Msg("websocket write failed")
				s.hub.Disconnect(s, ReasonWriteError)
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.Disconnect(s, ReasonWriteError)
				return
			}
		}
	}
}
