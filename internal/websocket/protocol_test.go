// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/authz"
	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/orderdir"
	"github.com/tomtom215/ordertrail/internal/testinfra"
	"github.com/tomtom215/ordertrail/internal/topic"
)

const wait = 2 * time.Second

type testServer struct {
	hub     *Hub
	emitter *Emitter
	server  *httptest.Server
	url     string
}

type serverOption func(*ProtocolConfig, *HandlerConfig)

func withDirectory(d orderdir.Directory) serverOption {
	return func(p *ProtocolConfig, _ *HandlerConfig) { p.Directory = d }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	hub, _ := startHub(t, 0)
	emitter := NewEmitter(hub, EmitterConfig{})

	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)

	validator, err := auth.NewValidator(testinfra.TestSecret)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	pcfg := ProtocolConfig{Authorizer: enforcer}
	hcfg := HandlerConfig{Session: DefaultSessionConfig(), AllowedOrigins: []string{"https://dashboard.example.com"}}
	for _, opt := range opts {
		opt(&pcfg, &hcfg)
	}

	handler := NewHandler(hub, validator, NewProtocol(hub, emitter, pcfg), hcfg)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{hub: hub, emitter: emitter, server: srv, url: testinfra.WSURL(srv.URL, "/ws")}
}

// dial connects as userID/role and waits until the session is registered.
func (ts *testServer) dial(t *testing.T, userID string, role auth.Role) *testinfra.WSConn {
	t.Helper()
	token := testinfra.SignToken(t, testinfra.TestSecret, userID, string(role), time.Hour)
	c := testinfra.DialWS(t, ts.url, token)
	roundTrip(t, c)
	return c
}

// roundTrip sends ping and waits for pong. Commands from one connection
// run in order, so everything sent before has been applied.
func roundTrip(t *testing.T, c *testinfra.WSConn) {
	t.Helper()
	c.Send(events.CmdPing, nil)
	c.Expect(events.Pong, wait)
}

func sessionIDOf(t *testing.T, hub *Hub, userID string) string {
	t.Helper()
	ut, _ := topic.ForUser(userID)
	ids := hub.Members(ut)
	if len(ids) != 1 {
		t.Fatalf("user %s has %d sessions", userID, len(ids))
	}
	return ids[0]
}

func TestHandshake_RejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)

	expired := testinfra.SignToken(t, testinfra.TestSecret, "u1", "user", -time.Hour)
	wrongSecret := testinfra.SignToken(t, "another-secret-another-secret-123456", "u1", "user", time.Hour)
	unknownRole := testinfra.SignToken(t, testinfra.TestSecret, "u1", "superuser", time.Hour)
	badUserID := testinfra.SignToken(t, testinfra.TestSecret, "u:1", "user", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong secret", wrongSecret},
		{"unknown role", unknownRole},
		{"user id unusable in topic", badUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := testinfra.TryDialWS(ts.url, tt.token)
			if err == nil {
				_ = conn.Close()
				t.Fatal("handshake should fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("resp = %v, want 401", resp)
			}
		})
	}
	if n := ts.hub.SessionCount(); n != 0 {
		t.Errorf("SessionCount = %d after rejected handshakes", n)
	}
}

func TestHandshake_ErrorBody(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.server.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized || body.Success || body.Error.Code != "UNAUTHORIZED" {
		t.Errorf("status %d body %+v", resp.StatusCode, body)
	}
}

func TestHandshake_TokenInQueryParameter(t *testing.T) {
	ts := newTestServer(t)
	token := testinfra.SignToken(t, testinfra.TestSecret, "q1", "user", time.Hour)

	conn, _, err := testinfra.TryDialWS(ts.url+"?token="+token, "")
	if err != nil {
		t.Fatalf("dial with query token: %v", err)
	}
	c := testinfra.NewWSConn(t, conn)
	roundTrip(t, c)
}

func TestHandshake_RejectsUnknownOrigin(t *testing.T) {
	ts := newTestServer(t)
	token := testinfra.SignToken(t, testinfra.TestSecret, "u1", "user", time.Hour)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Origin", "https://evil.example.com")
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	_, resp, err := dialer.Dial(ts.url, header)
	if err == nil {
		t.Fatal("expected origin rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v, want 403", resp)
	}
}

func TestFanOut_ReachesOnlyOrderSubscribers(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "a", auth.RoleUser)
	b := ts.dial(t, "b", auth.RoleUser)
	c := ts.dial(t, "c", auth.RoleUser)

	a.Send(events.CmdOrderSubscribe, "abc")
	b.Send(events.CmdOrderSubscribe, events.OrderRef{OrderID: "abc"})
	c.Send(events.CmdOrderSubscribe, "xyz")
	for _, conn := range []*testinfra.WSConn{a, b, c} {
		roundTrip(t, conn)
	}

	if _, err := ts.emitter.StatusChanged(events.StatusUpdated{OrderID: "abc", Status: "confirmed", PreviousStatus: "pending"}); err != nil {
		t.Fatal(err)
	}

	for _, conn := range []*testinfra.WSConn{a, b} {
		var p events.StatusUpdated
		testinfra.Decode(t, conn.Expect(events.OrderStatusUpdated, wait), &p)
		if p.OrderID != "abc" || p.Status != "confirmed" || p.PreviousStatus != "pending" {
			t.Errorf("payload = %+v", p)
		}
		conn.ExpectNone(events.OrderStatusUpdated, 100*time.Millisecond)
	}
	c.ExpectNone(events.OrderStatusUpdated, 200*time.Millisecond)
}

func TestDriverLocationUpdate_ForbiddenForUser(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.dial(t, "adm", auth.RoleAdmin)
	admin.Send(events.CmdAdminOrdersSubscribe, nil)
	roundTrip(t, admin)

	user := ts.dial(t, "u1", auth.RoleUser)
	user.Send(events.CmdOrderSubscribe, "o1")
	user.Send(events.CmdDriverLocationUpdate, json.RawMessage(`{"orderId":"o1","lat":18.5,"lng":-72.3}`))

	if e := user.ExpectError(wait); e.Code != events.CodeForbidden {
		t.Errorf("code = %s, want FORBIDDEN", e.Code)
	}
	user.ExpectNone(events.OrderLocationUpdated, 200*time.Millisecond)
	admin.ExpectNone(events.OrderLocationUpdated, 100*time.Millisecond)

	// The connection stays usable.
	roundTrip(t, user)
}

func TestDriverLocationUpdate_RejectsMalformedCoordinates(t *testing.T) {
	ts := newTestServer(t)
	watcher := ts.dial(t, "adm", auth.RoleAdmin)
	watcher.Send(events.CmdAdminOrdersSubscribe, nil)
	roundTrip(t, watcher)

	driver := ts.dial(t, "d1", auth.RoleDriver)

	payloads := []string{
		`{"orderId":"o1","lat":"abc","lng":-72.3}`,
		`{"orderId":"o1","lng":-72.3}`,
		`{"orderId":"o1","lat":95,"lng":-72.3}`,
		`{"orderId":"o1","lat":18.5,"lng":-72.3,"heading":400}`,
		`{"lat":18.5,"lng":-72.3}`,
		`"o1"`,
	}
	for _, p := range payloads {
		driver.Send(events.CmdDriverLocationUpdate, json.RawMessage(p))
		if e := driver.ExpectError(wait); e.Code != events.CodeInvalidData {
			t.Errorf("%s: code = %s, want INVALID_DATA", p, e.Code)
		}
	}
	watcher.ExpectNone(events.OrderLocationUpdated, 200*time.Millisecond)
}

func TestDriverLocationUpdate_FansOut(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.dial(t, "c1", auth.RoleUser)
	customer.Send(events.CmdOrderSubscribe, "o1")
	roundTrip(t, customer)
	admin := ts.dial(t, "adm", auth.RoleAdmin)
	admin.Send(events.CmdAdminOrdersSubscribe, nil)
	roundTrip(t, admin)

	driver := ts.dial(t, "d1", auth.RoleDriver)
	driver.Send(events.CmdDriverLocationUpdate, json.RawMessage(`{"orderId":"o1","lat":18.5,"lng":-72.3,"speed":8.2}`))

	for _, c := range []*testinfra.WSConn{customer, admin} {
		var p events.LocationUpdated
		testinfra.Decode(t, c.Expect(events.OrderLocationUpdated, wait), &p)
		if p.DriverID != "d1" || p.Lat != 18.5 || p.Lng != -72.3 || p.Speed == nil || *p.Speed != 8.2 || p.Heading != nil {
			t.Errorf("payload = %+v", p)
		}
		if p.Timestamp.IsZero() {
			t.Error("timestamp missing")
		}
	}
}

func TestDriverStatusUpdate(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.dial(t, "c1", auth.RoleUser)
	customer.Send(events.CmdOrderSubscribe, "o1")
	roundTrip(t, customer)

	driver := ts.dial(t, "d1", auth.RoleDriver)

	driver.Send(events.CmdDriverStatusUpdate, events.StatusUpdate{OrderID: "o1", Status: "picked_up"})
	var first events.StatusUpdated
	testinfra.Decode(t, customer.Expect(events.OrderStatusUpdated, wait), &first)
	if first.PreviousStatus != events.StatusUnknown || first.EstimatedDelivery != nil {
		t.Errorf("first update = %+v", first)
	}

	var n events.NotificationPayload
	testinfra.Decode(t, driver.Expect(events.Notification, wait), &n)
	if n.Type != events.NotifySuccess || n.OrderID != "o1" {
		t.Errorf("notification = %+v", n)
	}
	customer.ExpectNone(events.Notification, 100*time.Millisecond)

	driver.Send(events.CmdDriverStatusUpdate, events.StatusUpdate{OrderID: "o1", Status: "in_transit", Note: "on the way"})
	var second events.StatusUpdated
	testinfra.Decode(t, customer.Expect(events.OrderStatusUpdated, wait), &second)
	if second.PreviousStatus != "picked_up" || second.Note != "on the way" || second.EstimatedDelivery == nil {
		t.Errorf("second update = %+v", second)
	}

	driver.Send(events.CmdDriverStatusUpdate, json.RawMessage(`{"orderId":"o1"}`))
	if e := driver.ExpectError(wait); e.Code != events.CodeInvalidData {
		t.Errorf("missing status: code = %s", e.Code)
	}

	customer.Send(events.CmdDriverStatusUpdate, events.StatusUpdate{OrderID: "o1", Status: "delivered"})
	if e := customer.ExpectError(wait); e.Code != events.CodeForbidden {
		t.Errorf("user status update: code = %s", e.Code)
	}
}

func TestDriverStatusUpdate_PreviousStatusFromDirectory(t *testing.T) {
	svc := testinfra.NewMockOrderService(t)
	svc.Put(testinfra.MockOrder{OrderID: "o7", CustomerID: "c1", DriverID: "d1", Status: "ready"})
	dir, err := orderdir.NewHTTPDirectory(orderdir.HTTPConfig{BaseURL: svc.URL(), Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, withDirectory(dir))

	customer := ts.dial(t, "c1", auth.RoleUser)
	customer.Send(events.CmdOrderSubscribe, "o7")
	roundTrip(t, customer)

	driver := ts.dial(t, "d1", auth.RoleDriver)
	driver.Send(events.CmdDriverStatusUpdate, events.StatusUpdate{OrderID: "o7", Status: "picked_up"})

	var p events.StatusUpdated
	testinfra.Decode(t, customer.Expect(events.OrderStatusUpdated, wait), &p)
	if p.PreviousStatus != "ready" {
		t.Errorf("previousStatus = %q, want ready", p.PreviousStatus)
	}
}

func TestOrderSubscribe_EnforcesOwnershipWithDirectory(t *testing.T) {
	svc := testinfra.NewMockOrderService(t)
	svc.Put(testinfra.MockOrder{OrderID: "o1", CustomerID: "c1", DriverID: "d1", Status: "pending"})
	dir, err := orderdir.NewHTTPDirectory(orderdir.HTTPConfig{BaseURL: svc.URL(), Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, withDirectory(dir))

	owner := ts.dial(t, "c1", auth.RoleUser)
	owner.Send(events.CmdOrderSubscribe, "o1")
	roundTrip(t, owner)

	stranger := ts.dial(t, "c2", auth.RoleUser)
	stranger.Send(events.CmdOrderSubscribe, "o1")
	if e := stranger.ExpectError(wait); e.Code != events.CodeForbidden {
		t.Errorf("code = %s, want FORBIDDEN", e.Code)
	}

	admin := ts.dial(t, "adm", auth.RoleAdmin)
	admin.Send(events.CmdOrderSubscribe, "o1")
	roundTrip(t, admin)

	members := ts.hub.Members(topic.MustForOrder("o1"))
	want := map[string]bool{sessionIDOf(t, ts.hub, "c1"): true, sessionIDOf(t, ts.hub, "adm"): true}
	if len(members) != 2 || !want[members[0]] || !want[members[1]] {
		t.Errorf("Members = %v", members)
	}
}

func TestAdminOrdersSubscribe_RequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	for _, role := range []auth.Role{auth.RoleUser, auth.RoleDriver} {
		c := ts.dial(t, "x-"+string(role), role)
		c.Send(events.CmdAdminOrdersSubscribe, nil)
		if e := c.ExpectError(wait); e.Code != events.CodeForbidden {
			t.Errorf("%s: code = %s", role, e.Code)
		}
	}
	if m := ts.hub.Members(topic.AdminAllOrders); len(m) != 0 {
		t.Errorf("admin feed members = %v", m)
	}

	admin := ts.dial(t, "adm", auth.RoleAdmin)
	admin.Send(events.CmdAdminOrdersSubscribe, nil)
	roundTrip(t, admin)
	if err := ts.emitter.OrderCreated(events.Created{OrderID: "o9", CustomerID: "c9"}); err != nil {
		t.Fatal(err)
	}
	admin.Expect(events.OrderCreated, wait)

	admin.Send(events.CmdAdminOrdersUnsubscribe, nil)
	roundTrip(t, admin)
	if m := ts.hub.Members(topic.AdminAllOrders); len(m) != 0 {
		t.Errorf("admin feed members after unsubscribe = %v", m)
	}
}

func TestDisconnect_ReleasesEveryMembership(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.dial(t, "adm", auth.RoleAdmin)
	admin.Send(events.CmdOrderSubscribe, "abc")
	admin.Send(events.CmdAdminOrdersSubscribe, nil)
	roundTrip(t, admin)

	id := sessionIDOf(t, ts.hub, "adm")
	if got := ts.hub.TopicsOf(id); len(got) != 4 {
		t.Fatalf("TopicsOf = %v, want 4 topics", got)
	}

	admin.Close()

	deadline := time.Now().Add(wait)
	for ts.hub.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, tp := range []topic.Topic{topic.MustForOrder("abc"), topic.AdminAllOrders, "user:adm", "role:admin"} {
		if m := ts.hub.Members(tp); len(m) != 0 {
			t.Errorf("Members(%s) = %v after disconnect", tp, m)
		}
	}
	if got := ts.hub.TopicsOf(id); len(got) != 0 {
		t.Errorf("TopicsOf = %v after disconnect", got)
	}
	if ts.hub.TopicCount() != 0 {
		t.Errorf("TopicCount = %d", ts.hub.TopicCount())
	}
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	c := ts.dial(t, "u1", auth.RoleUser)
	id := sessionIDOf(t, ts.hub, "u1")
	before := ts.hub.TopicsOf(id)

	c.Send(events.CmdOrderUnsubscribe, "never")
	c.Send(events.CmdOrderUnsubscribe, "never")
	c.Send(events.CmdAdminOrdersUnsubscribe, nil)
	c.Send(events.CmdAdminOrdersUnsubscribe, nil)
	roundTrip(t, c)
	c.ExpectNone(events.Error, 100*time.Millisecond)

	after := ts.hub.TopicsOf(id)
	if len(before) != len(after) {
		t.Errorf("topics changed: %v -> %v", before, after)
	}

	c.Send(events.CmdOrderSubscribe, "o1")
	c.Send(events.CmdOrderUnsubscribe, "o1")
	c.Send(events.CmdOrderUnsubscribe, "o1")
	roundTrip(t, c)
	c.ExpectNone(events.Error, 100*time.Millisecond)
	if m := ts.hub.Members(topic.MustForOrder("o1")); len(m) != 0 {
		t.Errorf("Members = %v", m)
	}
}

func TestProtocol_MalformedFramesKeepConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	c := ts.dial(t, "u1", auth.RoleUser)

	frames := []string{
		`not json`,
		`{"data":"o1"}`,
		`{"event":"order:explode","data":"o1"}`,
		`{"event":"order:subscribe"}`,
		`{"event":"order:subscribe","data":{"orderId":""}}`,
		`{"event":"order:subscribe","data":{"orderId":"a:b"}}`,
		`{"event":"order:subscribe","data":{"orderId":"o1","extra":true}}`,
		`{"event":"order:subscribe","data":42}`,
	}
	for _, f := range frames {
		c.SendRaw([]byte(f))
		if e := c.ExpectError(wait); e.Code != events.CodeInvalidData {
			t.Errorf("%s: code = %s, want INVALID_DATA", f, e.Code)
		}
	}
	roundTrip(t, c)
}

func TestProtocol_PanicInHandlerBecomesInvalidData(t *testing.T) {
	ts := newTestServer(t)

	// A directory that panics exercises the recovery path.
	p := NewProtocol(ts.hub, ts.emitter, ProtocolConfig{Authorizer: allowAll{}, Directory: panicDirectory{}})
	s := NewSession(nil, auth.Identity{UserID: "local", Role: auth.RoleUser}, DefaultSessionConfig())
	if err := ts.hub.Connect(s); err != nil {
		t.Fatal(err)
	}
	p.Dispatch(context.Background(), s, []byte(`{"event":"order:subscribe","data":"o1"}`))

	f := recv(t, s, wait)
	var e events.ErrorPayload
	decodeData(t, f, &e)
	if f.Event != events.Error || e.Code != events.CodeInvalidData {
		t.Errorf("got %s %+v", f.Event, e)
	}
}

type allowAll struct{}

func (allowAll) Allowed(string, string) (bool, error) { return true, nil }

type panicDirectory struct{}

func (panicDirectory) CurrentStatus(context.Context, string) (string, error) { panic("boom") }

func (panicDirectory) CanTrack(context.Context, string, *auth.Identity) (bool, error) {
	panic("boom")
}

func (panicDirectory) Invalidate(string) {}

func TestHandshake_UnavailableWhenHubStopped(t *testing.T) {
	hub := NewHub(0)
	validator, _ := auth.NewValidator(testinfra.TestSecret)
	h := NewHandler(hub, validator, NewProtocol(hub, NewEmitter(hub, EmitterConfig{}), ProtocolConfig{Authorizer: allowAll{}}), HandlerConfig{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
