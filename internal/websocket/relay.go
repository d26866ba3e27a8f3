// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/ordertrail/internal/breaker"
	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/metrics"
	"github.com/tomtom215/ordertrail/internal/topic"
)

// RelayConfig configures the NATS relay.
type RelayConfig struct {
	URL     string
	Subject string

	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// RelayMessage is what travels between processes. Topic names are the same
// strings every process uses locally.
type RelayMessage struct {
	Origin string          `json:"origin"`
	Topics []topic.Topic   `json:"topics"`
	Event  events.Name     `json:"event"`
	Frame  json.RawMessage `json:"frame"`
}

// Relay bridges hub emissions between processes over NATS core pub/sub.
// Each process publishes what it emits locally and fans out what others
// publish; messages carrying its own origin are ignored.
type Relay struct {
	hub     *Hub
	emitter *Emitter
	cfg     RelayConfig
	origin  string
	breaker *breaker.Breaker[struct{}]

	mu sync.RWMutex
	nc *nats.Conn

	ready     chan struct{}
	readyOnce sync.Once
}

// NewRelay creates a relay. It connects when Serve runs.
func NewRelay(hub *Hub, emitter *Emitter, cfg RelayConfig) *Relay {
	return &Relay{
		hub:     hub,
		emitter: emitter,
		cfg:     cfg,
		origin:  uuid.New().String(),
		ready:   make(chan struct{}),
		breaker: breaker.New[struct{}](breaker.Settings{
			Name:        "nats-relay",
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
		}),
	}
}

// Origin returns this process's relay identifier.
func (r *Relay) Origin() string {
	return r.origin
}

// Ready is closed once the relay is subscribed and publishing.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// String names the service in supervisor logs.
func (r *Relay) String() string {
	return "nats-relay"
}

// Serve implements suture.Service: it connects, installs itself as the
// hub's publisher, and fans out remote emissions until ctx is canceled.
func (r *Relay) Serve(ctx context.Context) error {
	nc, err := nats.Connect(r.cfg.URL,
		nats.Name("ordertrail-relay-"+r.origin[:8]),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS relay disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrl()).Msg("NATS relay reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	sub, err := nc.Subscribe(r.cfg.Subject, r.receive)
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", r.cfg.Subject, err)
	}

	if err := nc.Flush(); err != nil {
		logging.Warn().Err(err).Msg("NATS relay flush failed; subscription may be delayed")
	}

	r.mu.Lock()
	r.nc = nc
	r.mu.Unlock()
	r.hub.SetPublisher(r)
	r.readyOnce.Do(func() { close(r.ready) })

	logging.Info().Str("subject", r.cfg.Subject).Str("origin", r.origin).Msg("NATS relay started")

	<-ctx.Done()

	r.hub.SetPublisher(nil)
	r.mu.Lock()
	r.nc = nil
	r.mu.Unlock()
	_ = sub.Unsubscribe()
	if err := nc.Drain(); err != nil {
		nc.Close()
	}

	logging.Info().Msg("NATS relay stopped")
	return ctx.Err()
}

var errRelayNotConnected = errors.New("relay not connected")

// Check reports whether the relay currently holds a live NATS connection.
// It fits the readiness probe's check signature.
func (r *Relay) Check(context.Context) error {
	r.mu.RLock()
	nc := r.nc
	r.mu.RUnlock()
	if nc == nil || !nc.IsConnected() {
		return errRelayNotConnected
	}
	return nil
}

// Publish sends a local emission to the other processes.
func (r *Relay) Publish(topics []topic.Topic, event events.Name, frame []byte) {
	data, err := json.Marshal(RelayMessage{Origin: r.origin, Topics: topics, Event: event, Frame: frame})
	if err != nil {
		metrics.RecordRelay("out", "encode_error")
		return
	}

	_, err = r.breaker.Execute(func() (struct{}, error) {
		r.mu.RLock()
		nc := r.nc
		r.mu.RUnlock()
		if nc == nil {
			return struct{}{}, errRelayNotConnected
		}
		return struct{}{}, nc.Publish(r.cfg.Subject, data)
	})
	switch {
	case err == nil:
		metrics.RecordRelay("out", "ok")
	case breaker.IsRejected(err):
		metrics.RecordRelay("out", "rejected")
	default:
		metrics.RecordRelay("out", "error")
		logging.Warn().Err(err).Str("event", string(event)).Msg("relay publish failed")
	}
}

func (r *Relay) receive(msg *nats.Msg) {
	var m RelayMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		metrics.RecordRelay("in", "decode_error")
		logging.Warn().Err(err).Msg("failed to unmarshal relay message")
		return
	}
	if m.Origin == r.origin {
		return
	}

	if m.Event == events.OrderStatusUpdated && r.emitter != nil {
		var f struct {
			Data events.StatusUpdated `json:"data"`
		}
		if json.Unmarshal(m.Frame, &f) == nil {
			r.emitter.RememberStatus(f.Data.OrderID, f.Data.Status)
		}
	}

	if err := r.hub.EmitFrame(m.Event, m.Frame, m.Topics...); err != nil {
		metrics.RecordRelay("in", "dropped")
		return
	}
	metrics.RecordRelay("in", "ok")
}
