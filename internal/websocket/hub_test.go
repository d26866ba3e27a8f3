// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/topic"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "json",
		Output: io.Discard,
	})
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T, emitBuffer int) (*Hub, context.CancelFunc) {
	t.Helper()

	hub := NewHub(emitBuffer)
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

	deadline := time.Now().Add(2 * time.Second)
	for !hub.Running() {
		if time.Now().After(deadline) {
			t.Fatal("hub did not start")
		}
		time.Sleep(time.Millisecond)
	}
	return hub, cancel
}

// connectLocal registers a session with no transport; frames are read
// straight from its queue.
func connectLocal(t *testing.T, hub *Hub, userID string, role auth.Role, sendBuffer int) *Session {
	t.Helper()

	cfg := DefaultSessionConfig()
	cfg.SendBuffer = sendBuffer
	s := NewSession(nil, auth.Identity{UserID: userID, Email: userID + "@example.com", Role: role}, cfg)
	if err := hub.Connect(s); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s
}

func recv(t *testing.T, s *Session, timeout time.Duration) events.Frame {
	t.Helper()
	select {
	case b, ok := <-s.send:
		if !ok {
			t.Fatal("session queue closed")
		}
		f, err := events.DecodeFrame(b)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		return f
	case <-time.After(timeout):
		t.Fatal("timed out waiting for frame")
	}
	return events.Frame{}
}

func expectNoFrame(t *testing.T, s *Session, window time.Duration) {
	t.Helper()
	select {
	case b, ok := <-s.send:
		if ok {
			t.Fatalf("unexpected frame: %s", b)
		}
	case <-time.After(window):
	}
}

func waitClosed(t *testing.T, s *Session, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-s.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("session queue was not closed")
		}
	}
}

func decodeData(t *testing.T, f events.Frame, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s: %v", f.Event, err)
	}
}

func TestHub_ConnectJoinsUserAndRoleTopics(t *testing.T) {
	hub, _ := startHub(t, 0)
	s := connectLocal(t, hub, "u1", auth.RoleDriver, 8)

	got := hub.TopicsOf(s.ID())
	want := []topic.Topic{"role:driver", "user:u1"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("TopicsOf = %v, want %v", got, want)
	}
	if hub.SessionCount() != 1 || hub.TopicCount() != 2 {
		t.Errorf("SessionCount=%d TopicCount=%d", hub.SessionCount(), hub.TopicCount())
	}

	st := hub.Stats()
	if st.Sessions != 1 || st.SessionsByRole["driver"] != 1 || !st.Running {
		t.Errorf("Stats = %+v", st)
	}
	if age := time.Since(s.ConnectedAt()).Seconds(); st.OldestSessionAge < 0 || st.OldestSessionAge > age {
		t.Errorf("OldestSessionAge = %v, session age %v", st.OldestSessionAge, age)
	}
}

func TestHub_ConnectRejectsUnusableUserID(t *testing.T) {
	hub, _ := startHub(t, 0)
	s := NewSession(nil, auth.Identity{UserID: "a:b", Role: auth.RoleUser}, DefaultSessionConfig())
	if err := hub.Connect(s); !errors.Is(err, topic.ErrInvalidTopic) {
		t.Errorf("Connect err = %v, want ErrInvalidTopic", err)
	}
	if hub.SessionCount() != 0 {
		t.Error("rejected session must not be registered")
	}
}

func TestHub_FanOutOnlyToMembers(t *testing.T) {
	hub, _ := startHub(t, 0)
	a := connectLocal(t, hub, "a", auth.RoleUser, 8)
	b := connectLocal(t, hub, "b", auth.RoleUser, 8)
	c := connectLocal(t, hub, "c", auth.RoleUser, 8)

	abc := topic.MustForOrder("abc")
	_ = hub.Join(a, abc)
	_ = hub.Join(b, abc)
	_ = hub.Join(c, topic.MustForOrder("xyz"))

	if err := hub.Emit(events.OrderStatusUpdated, events.StatusUpdated{OrderID: "abc", Status: "ready"}, abc); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	for _, s := range []*Session{a, b} {
		f := recv(t, s, time.Second)
		if f.Event != events.OrderStatusUpdated {
			t.Errorf("got %s", f.Event)
		}
		expectNoFrame(t, s, 50*time.Millisecond)
	}
	expectNoFrame(t, c, 100*time.Millisecond)
}

func TestHub_OneCopyAcrossOverlappingTopics(t *testing.T) {
	hub, _ := startHub(t, 0)
	admin := connectLocal(t, hub, "adm", auth.RoleAdmin, 8)
	_ = hub.Join(admin, topic.AdminAllOrders)
	_ = hub.Join(admin, topic.MustForOrder("o1"))

	_ = hub.Emit(events.OrderLocationUpdated, events.LocationUpdated{OrderID: "o1"},
		topic.MustForOrder("o1"), topic.AdminAllOrders)

	recv(t, admin, time.Second)
	expectNoFrame(t, admin, 100*time.Millisecond)
}

func TestHub_FIFOPerTopic(t *testing.T) {
	hub, _ := startHub(t, 0)
	s := connectLocal(t, hub, "u", auth.RoleUser, 128)
	o := topic.MustForOrder("o1")
	_ = hub.Join(s, o)

	statuses := events.KnownStatuses
	for _, st := range statuses {
		_ = hub.Emit(events.OrderStatusUpdated, events.StatusUpdated{OrderID: "o1", Status: st}, o)
	}
	for _, want := range statuses {
		var p events.StatusUpdated
		decodeData(t, recv(t, s, time.Second), &p)
		if p.Status != want {
			t.Fatalf("got status %q, want %q", p.Status, want)
		}
	}
}

func TestHub_DisconnectCleansUpEveryTopic(t *testing.T) {
	hub, _ := startHub(t, 0)
	admin := connectLocal(t, hub, "adm", auth.RoleAdmin, 8)
	other := connectLocal(t, hub, "other", auth.RoleAdmin, 8)
	abc := topic.MustForOrder("abc")
	_ = hub.Join(admin, abc)
	_ = hub.Join(admin, topic.AdminAllOrders)
	_ = hub.Join(other, topic.AdminAllOrders)

	hub.Disconnect(admin, ReasonClientClosed)
	waitClosed(t, admin, time.Second)

	if m := hub.Members(abc); len(m) != 0 {
		t.Errorf("Members(order:abc) = %v, want empty", m)
	}
	if m := hub.Members(topic.AdminAllOrders); len(m) != 1 || m[0] != other.ID() {
		t.Errorf("Members(admin:all-orders) = %v, want only %s", m, other.ID())
	}
	if got := hub.TopicsOf(admin.ID()); len(got) != 0 {
		t.Errorf("TopicsOf(disconnected) = %v", got)
	}
	if m := hub.Members(topic.Topic("user:adm")); len(m) != 0 {
		t.Errorf("auto-joined user topic still has %v", m)
	}

	// Second disconnect and later joins are no-ops.
	hub.Disconnect(admin, ReasonReadError)
	if err := hub.Join(admin, abc); err != nil {
		t.Fatalf("Join after disconnect: %v", err)
	}
	if m := hub.Members(abc); len(m) != 0 {
		t.Errorf("closed session rejoined: %v", m)
	}
}

func TestHub_LeaveIsIdempotent(t *testing.T) {
	hub, _ := startHub(t, 0)
	s := connectLocal(t, hub, "u", auth.RoleUser, 8)
	before := hub.TopicsOf(s.ID())

	o := topic.MustForOrder("never-joined")
	for i := 0; i < 2; i++ {
		if err := hub.Leave(s, o); err != nil {
			t.Fatalf("Leave: %v", err)
		}
	}
	if err := hub.Leave(s, topic.AdminAllOrders); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	after := hub.TopicsOf(s.ID())
	if len(before) != len(after) {
		t.Errorf("topics changed: %v -> %v", before, after)
	}
	if hub.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", hub.TopicCount())
	}
}

func TestHub_SlowConsumerIsDisconnected(t *testing.T) {
	hub, _ := startHub(t, 0)
	slow := connectLocal(t, hub, "slow", auth.RoleUser, 1)
	fast := connectLocal(t, hub, "fast", auth.RoleUser, 8)
	o := topic.MustForOrder("o1")
	_ = hub.Join(slow, o)
	_ = hub.Join(fast, o)

	for i := 0; i < 3; i++ {
		_ = hub.Emit(events.OrderStatusUpdated, events.StatusUpdated{OrderID: "o1", Status: "ready"}, o)
	}
	for i := 0; i < 3; i++ {
		recv(t, fast, time.Second)
	}

	waitClosed(t, slow, time.Second)
	if m := hub.Members(o); len(m) != 1 || m[0] != fast.ID() {
		t.Errorf("Members = %v, want only fast", m)
	}
}

func TestHub_SendTargetsOneSession(t *testing.T) {
	hub, _ := startHub(t, 0)
	a := connectLocal(t, hub, "same", auth.RoleUser, 8)
	b := connectLocal(t, hub, "same", auth.RoleUser, 8)

	if err := hub.Send(a, events.Pong, nil); err != nil {
		t.Fatal(err)
	}
	if f := recv(t, a, time.Second); f.Event != events.Pong {
		t.Errorf("got %s", f.Event)
	}
	expectNoFrame(t, b, 100*time.Millisecond)
}

func TestHub_ConcurrentMembershipAndEmit(t *testing.T) {
	hub, _ := startHub(t, 4096)
	o := topic.MustForOrder("busy")
	stable := connectLocal(t, hub, "stable", auth.RoleUser, 4096)
	_ = hub.Join(stable, o)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewSession(nil, auth.Identity{UserID: "churn", Role: auth.RoleUser}, SessionConfig{SendBuffer: 4096})
			_ = hub.Connect(s)
			for j := 0; j < 50; j++ {
				_ = hub.Join(s, o)
				_ = hub.Leave(s, o)
			}
			hub.Disconnect(s, ReasonClientClosed)
		}()
	}
	const emits = 200
	for i := 0; i < emits; i++ {
		_ = hub.Emit(events.OrderStatusUpdated, events.StatusUpdated{OrderID: "busy", Status: "ready"}, o)
	}
	wg.Wait()

	for i := 0; i < emits; i++ {
		recv(t, stable, time.Second)
	}
	expectNoFrame(t, stable, 50*time.Millisecond)
}

func TestHub_ShutdownDisconnectsEverySession(t *testing.T) {
	hub, cancel := startHub(t, 0)
	a := connectLocal(t, hub, "a", auth.RoleUser, 8)
	b := connectLocal(t, hub, "b", auth.RoleAdmin, 8)

	cancel()
	waitClosed(t, a, time.Second)
	waitClosed(t, b, time.Second)

	deadline := time.Now().Add(time.Second)
	for hub.Running() {
		if time.Now().After(deadline) {
			t.Fatal("hub still running")
		}
		time.Sleep(time.Millisecond)
	}
	if err := hub.Emit(events.Notification, nil, topic.AdminAllOrders); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Emit after shutdown err = %v", err)
	}
	s := NewSession(nil, auth.Identity{UserID: "late", Role: auth.RoleUser}, DefaultSessionConfig())
	if err := hub.Connect(s); !errors.Is(err, ErrHubStopped) {
		t.Errorf("Connect after shutdown err = %v", err)
	}
	if err := hub.RunWithContext(context.Background()); err == nil {
		t.Error("a stopped hub must not run again")
	}
}
