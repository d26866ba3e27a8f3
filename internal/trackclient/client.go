// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package trackclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/logging"
)

// State is the transport state of a Client.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

var (
	// ErrAuthentication means the server rejected the handshake credential.
	// It is never retried.
	ErrAuthentication = errors.New("handshake rejected: invalid or expired credential")

	// ErrReconnectExhausted means every dial attempt of a sequence failed.
	ErrReconnectExhausted = errors.New("connection attempts exhausted")

	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("client closed")
)

// Config configures a Client.
type Config struct {
	// URL is the realtime endpoint, e.g. wss://rt.example.com/ws.
	URL string

	// Token is the bearer credential sent with every handshake.
	Token string

	// MaxAttempts bounds the dial attempts of one connect or reconnect
	// sequence. Default: 5
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt; it doubles
	// after each failure up to MaxBackoff. Defaults: 1s and 5s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	HandshakeTimeout time.Duration // Default: 10s
	WriteTimeout     time.Duration // Default: 10s

	// ReadTimeout is how long the connection may stay silent, server pings
	// included, before it is considered dead. Default: 75s
	ReadTimeout time.Duration

	// OnStateChange, if set, is called after every state transition.
	OnStateChange func(State)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 75 * time.Second
	}
	return c
}

// Client maintains one realtime connection and the subscriptions its
// caller wants, replaying them after every reconnect.
type Client struct {
	cfg    Config
	dialer websocket.Dialer

	// ctx lives until Disconnect.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	conn         *websocket.Conn
	state        State
	err          error
	started      bool
	trackedOrder string
	watchAll     bool

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[events.Name][]*Listener

	// deliverMu is held while a listener runs.
	deliverMu sync.Mutex

	closed atomic.Bool
}

// New creates a client. Nothing is dialed until Connect.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:       cfg,
		dialer:    websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		listeners: make(map[events.Name][]*Listener),
	}
}

// Connect dials the server, retrying with backoff, and returns once the
// connection is up or the attempts are spent. ctx bounds only this initial
// sequence; later reconnects run until Disconnect. Calling Connect while
// connected does nothing.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.setState(StateConnecting, nil)
	conn, err := c.dialWithRetry(ctx)
	if err != nil {
		c.fail(err)
		return err
	}
	if !c.attach(conn) {
		return ErrClosed
	}
	go c.run(conn)
	return nil
}

// State returns the current transport state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that put the client in StateFailed, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// IsConnected reports whether the transport is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected && c.conn != nil
}

// Disconnect closes the transport, stops reconnecting and clears every
// listener. It waits for a listener that is already running, and no
// listener runs after it returns. It is safe to call more than once.
//
// A listener must not call Disconnect directly, since it would wait for
// itself; use go c.Disconnect() instead.
func (c *Client) Disconnect() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	// Barrier: an in-flight listener finishes, later ones see closed.
	c.deliverMu.Lock()
	//nolint:staticcheck // empty critical section is the barrier
	c.deliverMu.Unlock()

	c.listenersMu.Lock()
	c.listeners = make(map[events.Name][]*Listener)
	c.listenersMu.Unlock()

	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.setState(StateClosed, nil)
}

// TrackOrder makes orderID the tracked order, replacing any previous one.
// The subscription is sent now if connected and replayed after every
// reconnect.
func (c *Client) TrackOrder(orderID string) error {
	if orderID == "" {
		return errors.New("order id is required")
	}
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	prev := c.trackedOrder
	c.trackedOrder = orderID
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if prev != "" && prev != orderID {
		if err := c.sendOn(conn, events.CmdOrderUnsubscribe, events.OrderRef{OrderID: prev}); err != nil {
			return err
		}
	}
	return c.sendOn(conn, events.CmdOrderSubscribe, events.OrderRef{OrderID: orderID})
}

// UntrackOrder stops tracking the current order.
func (c *Client) UntrackOrder() error {
	c.mu.Lock()
	prev := c.trackedOrder
	c.trackedOrder = ""
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || prev == "" {
		return nil
	}
	return c.sendOn(conn, events.CmdOrderUnsubscribe, events.OrderRef{OrderID: prev})
}

// TrackedOrder returns the order id replayed on reconnect.
func (c *Client) TrackedOrder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackedOrder
}

// WatchAllOrders subscribes to the admin feed. The server refuses it for
// non-admin credentials with a FORBIDDEN error event.
func (c *Client) WatchAllOrders() error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	c.watchAll = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.sendOn(conn, events.CmdAdminOrdersSubscribe, nil)
}

// UnwatchAllOrders leaves the admin feed.
func (c *Client) UnwatchAllOrders() error {
	c.mu.Lock()
	was := c.watchAll
	c.watchAll = false
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !was {
		return nil
	}
	return c.sendOn(conn, events.CmdAdminOrdersUnsubscribe, nil)
}

// UpdateLocation reports the driver's position for an order.
func (c *Client) UpdateLocation(u events.LocationUpdate) error {
	return c.send(events.CmdDriverLocationUpdate, u)
}

// UpdateStatus reports a status transition for an order.
func (c *Client) UpdateStatus(u events.StatusUpdate) error {
	return c.send(events.CmdDriverStatusUpdate, u)
}

// Ping asks the server for a pong event.
func (c *Client) Ping() error {
	return c.send(events.CmdPing, nil)
}

func (c *Client) send(event events.Name, payload interface{}) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.sendOn(conn, event, payload)
}

func (c *Client) sendOn(conn *websocket.Conn, event events.Name, payload interface{}) error {
	frame, err := events.Encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// run reads from conn and redials whenever it drops.
func (c *Client) run(conn *websocket.Conn) {
	for {
		c.readLoop(conn)
		if c.closed.Load() {
			return
		}
		c.detach(conn)

		c.setState(StateReconnecting, nil)
		next, err := c.dialWithRetry(c.ctx)
		if err != nil {
			if !c.closed.Load() {
				c.fail(err)
			}
			return
		}
		if !c.attach(next) {
			return
		}
		conn = next
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				logging.Warn().Err(err).Str("url", c.cfg.URL).Msg("realtime connection lost")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		frame, err := events.DecodeFrame(msg)
		if err != nil {
			logging.Debug().Err(err).Msg("ignoring undecodable frame")
			continue
		}
		c.deliver(frame)
	}
}

// attach installs conn as the live connection and replays subscriptions.
// It returns false, closing conn, if the client was disconnected meanwhile.
func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	order, watchAll := c.trackedOrder, c.watchAll
	c.mu.Unlock()

	c.setState(StateConnected, nil)
	c.replay(conn, order, watchAll)
	return true
}

func (c *Client) replay(conn *websocket.Conn, order string, watchAll bool) {
	if order != "" {
		if err := c.sendOn(conn, events.CmdOrderSubscribe, events.OrderRef{OrderID: order}); err != nil {
			logging.Warn().Err(err).Str("order_id", order).Msg("failed to replay order subscription")
		}
	}
	if watchAll {
		if err := c.sendOn(conn, events.CmdAdminOrdersSubscribe, nil); err != nil {
			logging.Warn().Err(err).Msg("failed to replay admin feed subscription")
		}
	}
	logging.Debug().Str("order_id", order).Bool("all_orders", watchAll).Msg("subscriptions replayed")
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

// dialWithRetry runs one bounded connect sequence. It stops early on an
// authentication failure, ctx cancellation or Disconnect.
func (c *Client) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempts := 0
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		attempts++
		conn, err := c.dial(ctx)
		if errors.Is(err, ErrAuthentication) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Info().Err(err).
				Int("attempt", attempts).
				Int("max_attempts", c.cfg.MaxAttempts).
				Dur("retry_in", next).
				Msg("realtime dial failed, retrying")
		}),
	)
	switch {
	case err == nil:
		return conn, nil
	case c.closed.Load():
		return nil, ErrClosed
	case errors.Is(err, ErrAuthentication):
		return nil, err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("connect canceled after %d attempts: %w", attempts, err)
	default:
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempts, err)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized {
				return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
			}
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()

	if errors.Is(err, ErrAuthentication) {
		logging.Error().Err(err).Str("url", c.cfg.URL).Msg("realtime handshake rejected")
	} else {
		logging.Error().Err(err).Str("url", c.cfg.URL).Msg("realtime connection failed")
	}
	c.setState(StateFailed, err)
}

// setState records a transition. StateClosed is terminal.
func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	if s == StateConnected {
		c.err = nil
	}
	if err != nil {
		c.err = err
	}
	c.mu.Unlock()

	logging.Debug().Str("state", string(s)).Msg("realtime client state changed")
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}
