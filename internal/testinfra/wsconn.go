// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package testinfra

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ordertrail/internal/events"
)

// ErrReadTimeout is returned when no frame arrives in time.
var ErrReadTimeout = errors.New("timed out waiting for frame")

// WSConn is a test websocket client speaking the realtime frame protocol.
// A background goroutine reads frames so that waiting with a timeout never
// trips gorilla's read deadline, which would poison the connection.
type WSConn struct {
	t      testing.TB
	Conn   *websocket.Conn
	frames chan events.Frame
	done   chan struct{}
	err    error
}

// NewWSConn wraps an established connection and starts its reader.
func NewWSConn(t testing.TB, conn *websocket.Conn) *WSConn {
	c := &WSConn{
		t:      t,
		Conn:   conn,
		frames: make(chan events.Frame, 256),
		done:   make(chan struct{}),
	}
	go c.pump()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *WSConn) pump() {
	defer close(c.done)
	for {
		_, b, err := c.Conn.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		f, err := events.DecodeFrame(b)
		if err != nil {
			continue
		}
		c.frames <- f
	}
}

// WSURL converts an httptest server URL into a ws:// URL for path.
func WSURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// DialWS dials url with the token in the Authorization header.
// The connection is closed when the test ends.
func DialWS(t testing.TB, url, token string) *WSConn {
	t.Helper()

	conn, resp, err := TryDialWS(url, token)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	return NewWSConn(t, conn)
}

// TryDialWS dials without failing the test, for handshake rejection tests.
func TryDialWS(url, token string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Send writes one frame. data may be nil, a json.RawMessage, or any value.
func (c *WSConn) Send(event events.Name, data interface{}) {
	c.t.Helper()

	var b []byte
	var err error
	if raw, ok := data.(json.RawMessage); ok {
		b, err = json.Marshal(events.Frame{Event: event, Data: raw})
	} else {
		b, err = events.Encode(event, data)
	}
	if err != nil {
		c.t.Fatalf("encode %s: %v", event, err)
	}
	c.SendRaw(b)
}

// SendRaw writes a text message as-is.
func (c *WSConn) SendRaw(b []byte) {
	c.t.Helper()
	if err := c.Conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// Next reads one frame or fails the test after timeout.
func (c *WSConn) Next(timeout time.Duration) events.Frame {
	c.t.Helper()

	f, err := c.read(timeout)
	if err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	return f
}

// Expect reads frames until one named event arrives, skipping others,
// and fails the test after timeout.
func (c *WSConn) Expect(event events.Name, timeout time.Duration) events.Frame {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %s", event)
		}
		f, err := c.read(remaining)
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

// ExpectNone fails the test if a named event arrives within window.
func (c *WSConn) ExpectNone(event events.Name, window time.Duration) {
	c.t.Helper()

	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		f, err := c.read(remaining)
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				return
			}
			c.t.Fatalf("read while expecting no %s: %v", event, err)
		}
		if f.Event == event {
			c.t.Fatalf("unexpected %s: %s", event, f.Data)
		}
	}
}

// ExpectError reads frames until an error event arrives and returns its payload.
func (c *WSConn) ExpectError(timeout time.Duration) events.ErrorPayload {
	c.t.Helper()

	f := c.Expect(events.Error, timeout)
	var p events.ErrorPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		c.t.Fatalf("decode error payload: %v", err)
	}
	return p
}

// Decode unmarshals a frame's data into v.
func Decode(t testing.TB, f events.Frame, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s: %v", f.Event, err)
	}
}

// WaitClosed blocks until the server closes the connection.
func (c *WSConn) WaitClosed(timeout time.Duration) bool {
	select {
	case <-c.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close sends a close frame and closes the connection.
func (c *WSConn) Close() {
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.Conn.Close()
}

func (c *WSConn) read(timeout time.Duration) (events.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		// Drain anything read before the connection ended.
		select {
		case f := <-c.frames:
			return f, nil
		default:
		}
		if c.err != nil {
			return events.Frame{}, c.err
		}
		return events.Frame{}, errors.New("connection closed")
	case <-timer.C:
		return events.Frame{}, ErrReadTimeout
	}
}
