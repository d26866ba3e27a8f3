// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package trackclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/authz"
	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/testinfra"
	"github.com/tomtom215/ordertrail/internal/topic"
	rt "github.com/tomtom215/ordertrail/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

// realtimeServer is a full server-side stack behind httptest whose
// hijacked connections can be cut to simulate network drops.
type realtimeServer struct {
	hub     *rt.Hub
	emitter *rt.Emitter
	url     string

	refuse     atomic.Bool
	handshakes atomic.Int32

	mu    sync.Mutex
	conns []net.Conn
}

func startServer(t *testing.T) *realtimeServer {
	t.Helper()

	hub := rt.NewHub(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	eventually(t, hub.Running, "hub did not start")

	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(enforcer.Close)
	validator, err := auth.NewValidator(testinfra.TestSecret)
	if err != nil {
		t.Fatal(err)
	}

	emitter := rt.NewEmitter(hub, rt.EmitterConfig{})
	protocol := rt.NewProtocol(hub, emitter, rt.ProtocolConfig{Authorizer: enforcer})
	handler := rt.NewHandler(hub, validator, protocol, rt.HandlerConfig{})

	rs := &realtimeServer{hub: hub, emitter: emitter}
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.handshakes.Add(1)
		if rs.refuse.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	srv.Config.ConnState = func(c net.Conn, state http.ConnState) {
		if state == http.StateHijacked {
			rs.mu.Lock()
			rs.conns = append(rs.conns, c)
			rs.mu.Unlock()
		}
	}
	srv.Start()
	t.Cleanup(func() {
		rs.drop()
		srv.Close()
	})

	rs.url = testinfra.WSURL(srv.URL, "/ws")
	return rs
}

// drop cuts every live connection without a close handshake.
func (rs *realtimeServer) drop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, c := range rs.conns {
		_ = c.Close()
	}
	rs.conns = nil
}

func (rs *realtimeServer) newClient(t *testing.T, userID string, role auth.Role, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		URL:            rs.url,
		Token:          testinfra.SignToken(t, testinfra.TestSecret, userID, string(role), time.Hour),
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c := New(cfg)
	t.Cleanup(c.Disconnect)
	return c
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func membersOf(hub *rt.Hub, orderID string) []string {
	return hub.Members(topic.MustForOrder(orderID))
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestClient_ConnectTrackAndReceive(t *testing.T) {
	rs := startServer(t)
	c := rs.newClient(t, "c1", auth.RoleUser)

	updates := make(chan events.StatusUpdated, 4)
	c.On(events.OrderStatusUpdated, Decoded(func(u events.StatusUpdated) { updates <- u }))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() || c.State() != StateConnected {
		t.Fatalf("state = %s", c.State())
	}
	if err := c.TrackOrder("o1"); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return len(membersOf(rs.hub, "o1")) == 1 }, "order subscription not registered")

	if _, err := rs.emitter.StatusChanged(events.StatusUpdated{OrderID: "o1", Status: "confirmed", PreviousStatus: "pending"}); err != nil {
		t.Fatal(err)
	}
	if u := receive(t, updates); u.Status != "confirmed" || u.PreviousStatus != "pending" {
		t.Errorf("update = %+v", u)
	}
}

func TestClient_ReplaysSubscriptionsAfterDrop(t *testing.T) {
	rs := startServer(t)

	var states sync.Map
	c := rs.newClient(t, "c1", auth.RoleUser, func(cfg *Config) {
		cfg.OnStateChange = func(s State) { states.Store(s, true) }
	})
	updates := make(chan events.StatusUpdated, 4)
	c.On(events.OrderStatusUpdated, Decoded(func(u events.StatusUpdated) { updates <- u }))

	// Desired before connecting: sent by the first replay.
	if err := c.TrackOrder("o1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return len(membersOf(rs.hub, "o1")) == 1 }, "initial subscription missing")
	first := membersOf(rs.hub, "o1")[0]

	rs.drop()

	eventually(t, func() bool {
		m := membersOf(rs.hub, "o1")
		return len(m) == 1 && m[0] != first
	}, "subscription was not replayed on the new session")

	if _, ok := states.Load(StateReconnecting); !ok {
		t.Error("client never reported reconnecting")
	}
	if !c.IsConnected() {
		t.Error("client not connected after reconnect")
	}
	if got := rs.hub.SessionCount(); got != 1 {
		t.Errorf("SessionCount = %d, old session should be gone", got)
	}

	if _, err := rs.emitter.StatusChanged(events.StatusUpdated{OrderID: "o1", Status: "in_transit"}); err != nil {
		t.Fatal(err)
	}
	if u := receive(t, updates); u.Status != "in_transit" || u.EstimatedDelivery == nil {
		t.Errorf("update after reconnect = %+v", u)
	}
}

func TestClient_ReplaysAdminFeed(t *testing.T) {
	rs := startServer(t)
	c := rs.newClient(t, "adm", auth.RoleAdmin)

	created := make(chan events.Created, 2)
	c.On(events.OrderCreated, Decoded(func(e events.Created) { created <- e }))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.WatchAllOrders(); err != nil {
		t.Fatal(err)
	}
	adminFeed := func() bool { return len(rs.hub.Members(topic.AdminAllOrders)) == 1 }
	eventually(t, adminFeed, "admin feed subscription missing")

	rs.drop()
	eventually(t, func() bool { return rs.handshakes.Load() >= 2 && adminFeed() }, "admin feed not replayed")

	if err := rs.emitter.OrderCreated(events.Created{OrderID: "o5", CustomerID: "c5"}); err != nil {
		t.Fatal(err)
	}
	if e := receive(t, created); e.OrderID != "o5" || e.Status != events.StatusPending {
		t.Errorf("created = %+v", e)
	}
}

func TestClient_AuthenticationFailureIsTerminal(t *testing.T) {
	rs := startServer(t)
	expired := testinfra.SignToken(t, testinfra.TestSecret, "c1", "user", -time.Minute)
	c := rs.newClient(t, "c1", auth.RoleUser, func(cfg *Config) { cfg.Token = expired })

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("Connect error = %v, want ErrAuthentication", err)
	}
	if c.State() != StateFailed || !errors.Is(c.Err(), ErrAuthentication) {
		t.Errorf("state = %s, err = %v", c.State(), c.Err())
	}
	time.Sleep(100 * time.Millisecond)
	if n := rs.handshakes.Load(); n != 1 {
		t.Errorf("handshakes = %d, a rejected credential must not be retried", n)
	}
	if rs.hub.SessionCount() != 0 {
		t.Error("rejected handshake left a session behind")
	}
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	rs := startServer(t)
	rs.refuse.Store(true)
	c := rs.newClient(t, "c1", auth.RoleUser, func(cfg *Config) {
		cfg.MaxAttempts = 3
		cfg.InitialBackoff = 5 * time.Millisecond
		cfg.MaxBackoff = 10 * time.Millisecond
	})

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("Connect error = %v, want ErrReconnectExhausted", err)
	}
	if n := rs.handshakes.Load(); n != 3 {
		t.Errorf("handshakes = %d, want 3", n)
	}
	if c.State() != StateFailed || c.IsConnected() {
		t.Errorf("state = %s", c.State())
	}
}

func TestClient_FailsWhenReconnectIsExhausted(t *testing.T) {
	rs := startServer(t)
	c := rs.newClient(t, "c1", auth.RoleUser, func(cfg *Config) {
		cfg.MaxAttempts = 2
		cfg.InitialBackoff = 5 * time.Millisecond
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	rs.refuse.Store(true)
	rs.drop()

	eventually(t, func() bool { return c.State() == StateFailed }, "client did not give up")
	if !errors.Is(c.Err(), ErrReconnectExhausted) {
		t.Errorf("Err = %v", c.Err())
	}
	if n := rs.handshakes.Load(); n != 3 {
		t.Errorf("handshakes = %d, want 1 + 2 retries", n)
	}
}

func TestClient_ConnectHonorsContext(t *testing.T) {
	rs := startServer(t)
	rs.refuse.Store(true)
	c := rs.newClient(t, "c1", auth.RoleUser, func(cfg *Config) {
		cfg.MaxAttempts = 100
		cfg.InitialBackoff = 20 * time.Millisecond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := c.Connect(ctx)
	if err == nil || errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("Connect error = %v, want cancellation", err)
	}
}

func TestClient_DriverCommandsAndProtocolErrors(t *testing.T) {
	rs := startServer(t)

	customer := rs.newClient(t, "c1", auth.RoleUser)
	locations := make(chan events.LocationUpdated, 2)
	customer.On(events.OrderLocationUpdated, Decoded(func(l events.LocationUpdated) { locations <- l }))
	protoErrs := make(chan events.ErrorPayload, 2)
	customer.On(events.Error, Decoded(func(e events.ErrorPayload) { protoErrs <- e }))
	if err := customer.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := customer.TrackOrder("o1"); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return len(membersOf(rs.hub, "o1")) == 1 }, "subscription missing")

	driver := rs.newClient(t, "d1", auth.RoleDriver)
	notes := make(chan events.NotificationPayload, 2)
	driver.On(events.Notification, Decoded(func(n events.NotificationPayload) { notes <- n }))
	if err := driver.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	lat, lng := 18.54, -72.33
	if err := driver.UpdateLocation(events.LocationUpdate{OrderID: "o1", Lat: &lat, Lng: &lng}); err != nil {
		t.Fatal(err)
	}
	if l := receive(t, locations); l.DriverID != "d1" || l.Lat != lat {
		t.Errorf("location = %+v", l)
	}

	if err := driver.UpdateStatus(events.StatusUpdate{OrderID: "o1", Status: "picked_up"}); err != nil {
		t.Fatal(err)
	}
	if n := receive(t, notes); n.Type != events.NotifySuccess {
		t.Errorf("notification = %+v", n)
	}

	// A customer may not report locations; the error is not a disconnect.
	if err := customer.UpdateLocation(events.LocationUpdate{OrderID: "o1", Lat: &lat, Lng: &lng}); err != nil {
		t.Fatal(err)
	}
	if e := receive(t, protoErrs); e.Code != events.CodeForbidden {
		t.Errorf("error = %+v", e)
	}
	if !customer.IsConnected() {
		t.Error("protocol error must not affect connection state")
	}
}

func TestClient_TrackOrderReplacesPrevious(t *testing.T) {
	rs := startServer(t)
	c := rs.newClient(t, "c1", auth.RoleUser)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.TrackOrder("o1"); err != nil {
		t.Fatal(err)
	}
	if err := c.TrackOrder("o2"); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		return len(membersOf(rs.hub, "o1")) == 0 && len(membersOf(rs.hub, "o2")) == 1
	}, "tracked order not switched")
	if c.TrackedOrder() != "o2" {
		t.Errorf("TrackedOrder = %q", c.TrackedOrder())
	}

	if err := c.UntrackOrder(); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return len(membersOf(rs.hub, "o2")) == 0 }, "untrack not sent")
}

func TestClient_SendRequiresConnection(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws"})
	if err := c.Ping(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping before Connect = %v", err)
	}
	// Desired subscriptions are recorded without a connection.
	if err := c.TrackOrder("o1"); err != nil {
		t.Errorf("TrackOrder before Connect = %v", err)
	}
	if err := c.TrackOrder(""); err == nil {
		t.Error("empty order id accepted")
	}
}

func TestListeners_RegistrationIsIdempotent(t *testing.T) {
	c := New(Config{URL: "ws://unused"})
	frame := events.Frame{Event: events.Notification, Data: []byte(`{"type":"info","title":"t","message":"m"}`)}

	var calls atomic.Int32
	l := NewListener(func(events.Frame) { calls.Add(1) })
	c.On(events.Notification, l)
	c.On(events.Notification, l)
	if n := c.ListenerCount(events.Notification); n != 1 {
		t.Fatalf("ListenerCount = %d, want 1", n)
	}
	c.deliver(frame)
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}

	var typed atomic.Int32
	c.On(events.Notification, Decoded(func(events.NotificationPayload) { typed.Add(1) }))
	c.deliver(frame)
	if calls.Load() != 2 || typed.Load() != 1 {
		t.Fatalf("calls = %d typed = %d", calls.Load(), typed.Load())
	}

	c.Off(events.Notification, l)
	c.deliver(frame)
	if calls.Load() != 2 || typed.Load() != 2 {
		t.Fatalf("after Off(l): calls = %d typed = %d", calls.Load(), typed.Load())
	}

	c.Off(events.Notification, nil)
	c.deliver(frame)
	if typed.Load() != 2 || c.ListenerCount(events.Notification) != 0 {
		t.Error("Off(nil) should clear every listener")
	}
}

func TestListeners_DecodedRegistrationIsIdempotent(t *testing.T) {
	c := New(Config{URL: "ws://unused"})
	frame := events.Frame{Event: events.OrderStatusUpdated, Data: []byte(`{"orderId":"o1","status":"ready"}`)}

	var calls atomic.Int32
	l := Decoded(func(u events.StatusUpdated) {
		if u.Status == "ready" {
			calls.Add(1)
		}
	})
	c.On(events.OrderStatusUpdated, l)
	c.On(events.OrderStatusUpdated, l)
	if n := c.ListenerCount(events.OrderStatusUpdated); n != 1 {
		t.Fatalf("ListenerCount = %d, want 1", n)
	}
	c.deliver(frame)
	if n := calls.Load(); n != 1 {
		t.Fatalf("deliveries = %d, want 1", n)
	}

	c.deliver(events.Frame{Event: events.OrderStatusUpdated, Data: []byte(`"not an object"`)})
	if n := calls.Load(); n != 1 {
		t.Errorf("undecodable payload reached the callback: %d", n)
	}

	c.Off(events.OrderStatusUpdated, l)
	c.deliver(frame)
	if n := calls.Load(); n != 1 {
		t.Errorf("deliveries after Off = %d, want 1", n)
	}
}

func TestDisconnect_WaitsForRunningListener(t *testing.T) {
	c := New(Config{URL: "ws://unused"})

	entered := make(chan struct{})
	release := make(chan struct{})
	var later atomic.Int32
	c.On(events.Pong, NewListener(func(events.Frame) {
		close(entered)
		<-release
	}))
	c.On(events.Pong, NewListener(func(events.Frame) { later.Add(1) }))

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		c.deliver(events.Frame{Event: events.Pong})
	}()
	<-entered

	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		c.Disconnect()
	}()

	select {
	case <-disconnected:
		t.Fatal("Disconnect returned while a listener was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return after the listener finished")
	}
	<-delivered
	if n := later.Load(); n != 0 {
		t.Errorf("listener ran after Disconnect: %d calls", n)
	}
}

func TestListeners_PanicDoesNotStopOthers(t *testing.T) {
	c := New(Config{URL: "ws://unused"})
	var ok atomic.Bool
	c.On(events.Pong, NewListener(func(events.Frame) { panic("listener bug") }))
	c.On(events.Pong, NewListener(func(events.Frame) { ok.Store(true) }))

	c.deliver(events.Frame{Event: events.Pong})
	if !ok.Load() {
		t.Error("second listener not called")
	}
}

func TestDisconnect_StopsDelivery(t *testing.T) {
	rs := startServer(t)
	c := rs.newClient(t, "c1", auth.RoleUser)

	var calls atomic.Int32
	c.On(events.OrderStatusUpdated, Decoded(func(events.StatusUpdated) { calls.Add(1) }))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.TrackOrder("o1"); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return len(membersOf(rs.hub, "o1")) == 1 }, "subscription missing")

	c.Disconnect()
	c.Disconnect()

	if c.State() != StateClosed || c.IsConnected() {
		t.Errorf("state = %s", c.State())
	}
	if c.ListenerCount(events.OrderStatusUpdated) != 0 {
		t.Error("listeners not cleared")
	}

	// Frames already buffered on the client side are not delivered either.
	c.deliver(events.Frame{Event: events.OrderStatusUpdated, Data: []byte(`{"orderId":"o1","status":"x"}`)})
	c.On(events.OrderStatusUpdated, Decoded(func(events.StatusUpdated) { calls.Add(1) }))
	c.deliver(events.Frame{Event: events.OrderStatusUpdated, Data: []byte(`{"orderId":"o1","status":"x"}`)})
	if calls.Load() != 0 {
		t.Errorf("calls = %d after Disconnect", calls.Load())
	}

	eventually(t, func() bool { return rs.hub.SessionCount() == 0 }, "server session not released")
	if err := c.TrackOrder("o2"); !errors.Is(err, ErrClosed) {
		t.Errorf("TrackOrder after Disconnect = %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Disconnect = %v", err)
	}
}
