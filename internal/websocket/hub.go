// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/metrics"
	"github.com/tomtom215/ordertrail/internal/topic"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Disconnect reasons recorded in logs and metrics.
const (
	ReasonClientClosed = "client_closed"
	ReasonReadError    = "read_error"
	ReasonWriteError   = "write_error"
	ReasonSlowConsumer = "slow_consumer"
	ReasonShutdown     = "shutdown"
)

// ErrHubStopped is returned by hub operations after the hub has stopped.
var ErrHubStopped = errors.New("websocket hub stopped")

// Publisher forwards local emissions to other processes.
type Publisher interface {
	Publish(topics []topic.Topic, event events.Name, frame []byte)
}

// emission is one fan-out request. target, when set, receives the frame
// directly instead of the topic members.
type emission struct {
	topics []topic.Topic
	target *Session
	event  events.Name
	frame  []byte
}

// Hub owns the session registry and the topic membership map.
//
// All mutation and all fan-out happen on the goroutine running
// RunWithContext. Other goroutines talk to it through ops (lifecycle and
// membership changes, which they wait for) and emissions (fire and forget,
// processed strictly in arrival order).
type Hub struct {
	sessions map[string]*Session
	topics   map[topic.Topic]map[*Session]struct{}

	ops       chan func()
	emissions chan emission

	publisher atomic.Pointer[publisherRef]
	audit     *logging.AuditLogger

	running  atomic.Bool
	started  chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type publisherRef struct{ p Publisher }

// NewHub creates a hub. emitBuffer bounds queued emissions; producers
// block while it is full.
func NewHub(emitBuffer int) *Hub {
	if emitBuffer <= 0 {
		emitBuffer = 1024
	}
	return &Hub{
		sessions:  make(map[string]*Session),
		topics:    make(map[topic.Topic]map[*Session]struct{}),
		ops:       make(chan func()),
		emissions: make(chan emission, emitBuffer),
		audit:     logging.NewAuditLogger(),
		started:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// SetPublisher installs the cross-process relay. Nil removes it.
func (h *Hub) SetPublisher(p Publisher) {
	if p == nil {
		h.publisher.Store(nil)
		return
	}
	h.publisher.Store(&publisherRef{p: p})
}

// Running reports whether the hub loop is accepting work.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String names the service in supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

// RunWithContext runs the hub until ctx is canceled, then disconnects every
// session and returns ctx.Err().
//
// Lifecycle operations take priority over queued emissions so that a
// session's membership is settled before the next fan-out is processed.
func (h *Hub) RunWithContext(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return errors.New("websocket hub already running")
	}
	select {
	case <-h.stopped:
		h.running.Store(false)
		return ErrHubStopped
	default:
	}
	close(h.started)

	hubLog := logging.WithComponent("websocket-hub")
	hubLog.Info().Msg("websocket hub started")

	for {
		// Priority 1: shutdown
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle and membership
		select {
		case op := <-h.ops:
			h.safely(op)
			continue
		default:
		}

		// Priority 3: emissions, or wait for anything
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case op := <-h.ops:
			h.safely(op)
		case e := <-h.emissions:
			h.safely(func() { h.fanOut(e) })
		}
	}
}

// safely runs op, logging instead of crashing the loop if it panics.
func (h *Hub) safely(op func()) {
	defer func() {
		if r := recover(); r != nil {
			hubLog := logging.WithComponent("websocket-hub")
			hubLog.Error().
				Interface("panic", r).
				Msg("recovered panic in hub operation")
		}
	}()
	op()
}

func (h *Hub) shutdown(ctx context.Context) {
	h.running.Store(false)
	count := len(h.sessions)

	for _, s := range h.sortedSessions() {
		h.disconnect(s, ReasonShutdown)
	}
	h.stopOnce.Do(func() { close(h.stopped) })

	hubLog := logging.WithComponent("websocket-hub")
	hubLog.Info().
		Str("reason", string(getShutdownReason(ctx))).
		Int("sessions_closed", count).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// do runs op on the hub goroutine and waits for it to finish.
func (h *Hub) do(op func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		op()
	}

	select {
	case <-h.started:
	case <-h.stopped:
		return ErrHubStopped
	}

	select {
	case h.ops <- wrapped:
	case <-h.stopped:
		return ErrHubStopped
	}

	select {
	case <-done:
		return nil
	case <-h.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrHubStopped
		}
	}
}

// Connect registers s and joins it to its user and role topics.
func (h *Hub) Connect(s *Session) error {
	userTopic, err := topic.ForUser(s.identity.UserID)
	if err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	roleTopic, err := topic.ForRole(string(s.identity.Role))
	if err != nil {
		return fmt.Errorf("connect session: %w", err)
	}

	return h.do(func() {
		if _, exists := h.sessions[s.id]; exists {
			return
		}
		s.hub = h
		h.sessions[s.id] = s
		h.join(s, userTopic)
		h.join(s, roleTopic)

		metrics.RecordSessionOpened(string(s.identity.Role))
		h.audit.LogSessionOpened(s.identity.UserID, s.identity.Email, string(s.identity.Role), s.id, s.remoteAddr)
		logging.Debug().Int("total_sessions", len(h.sessions)).Msg("websocket session registered")
	})
}

// Disconnect removes s from every topic, closes its outbound queue and
// forgets it. Calling it again, or for a session that never connected,
// does nothing.
func (h *Hub) Disconnect(s *Session, reason string) {
	// ErrHubStopped means shutdown already disconnected everyone.
	_ = h.do(func() { h.disconnect(s, reason) })
}

func (h *Hub) disconnect(s *Session, reason string) {
	if s.closed {
		return
	}
	s.closed = true

	for t := range s.topics {
		h.removeMember(t, s)
	}
	s.topics = nil
	if h.sessions[s.id] == s {
		delete(h.sessions, s.id)
	}
	close(s.send)

	metrics.RecordSessionClosed(reason)
	metrics.TopicsActive.Set(float64(len(h.topics)))
	h.audit.LogSessionClosed(s.identity.UserID, s.id, reason)
	logging.Debug().Int("total_sessions", len(h.sessions)).Msg("websocket session removed")
}

// Join adds s to t. Joining twice is a no-op.
func (h *Hub) Join(s *Session, t topic.Topic) error {
	return h.do(func() {
		if s.closed {
			return
		}
		h.join(s, t)
	})
}

func (h *Hub) join(s *Session, t topic.Topic) {
	members, ok := h.topics[t]
	if !ok {
		members = make(map[*Session]struct{})
		h.topics[t] = members
		metrics.TopicsActive.Set(float64(len(h.topics)))
	}
	members[s] = struct{}{}
	s.topics[t] = struct{}{}
}

// Leave removes s from t. Leaving a topic that was never joined is a no-op.
func (h *Hub) Leave(s *Session, t topic.Topic) error {
	return h.do(func() {
		if s.closed {
			return
		}
		if _, ok := s.topics[t]; !ok {
			return
		}
		delete(s.topics, t)
		h.removeMember(t, s)
	})
}

// removeMember drops s from t and deletes t once empty.
func (h *Hub) removeMember(t topic.Topic, s *Session) {
	members, ok := h.topics[t]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.topics, t)
		metrics.TopicsActive.Set(float64(len(h.topics)))
	}
}

// Emit delivers payload as event to every member of the given topics,
// once per member even when it belongs to several of them, and hands it
// to the relay publisher if one is installed.
func (h *Hub) Emit(event events.Name, payload interface{}, topics ...topic.Topic) error {
	frame, err := events.Encode(event, payload)
	if err != nil {
		return err
	}
	if err := h.enqueue(emission{topics: topics, event: event, frame: frame}); err != nil {
		return err
	}
	if ref := h.publisher.Load(); ref != nil {
		ref.p.Publish(topics, event, frame)
	}
	return nil
}

// EmitFrame fans out an already encoded frame without publishing it to
// the relay. The relay uses it for emissions that originated elsewhere.
func (h *Hub) EmitFrame(event events.Name, frame []byte, topics ...topic.Topic) error {
	return h.enqueue(emission{topics: topics, event: event, frame: frame})
}

// Send delivers payload as event to s alone.
func (h *Hub) Send(s *Session, event events.Name, payload interface{}) error {
	frame, err := events.Encode(event, payload)
	if err != nil {
		return err
	}
	return h.enqueue(emission{target: s, event: event, frame: frame})
}

func (h *Hub) enqueue(e emission) error {
	select {
	case <-h.stopped:
		return ErrHubStopped
	default:
	}
	select {
	case h.emissions <- e:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// fanOut delivers e in session-id order. A member whose queue is full is
// disconnected rather than allowed to hold up the others.
func (h *Hub) fanOut(e emission) {
	var recipients []*Session
	if e.target != nil {
		if !e.target.closed {
			recipients = []*Session{e.target}
		}
	} else {
		recipients = h.membersOf(e.topics)
	}

	delivered := 0
	var slow []*Session
	for _, s := range recipients {
		select {
		case s.send <- e.frame:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		logging.Warn().
			Str("session_id", s.id).
			Str("event", string(e.event)).
			Msg("outbound queue full, disconnecting slow consumer")
		h.disconnect(s, ReasonSlowConsumer)
	}

	if e.target == nil {
		metrics.RecordEmission(string(e.event), delivered)
	} else {
		metrics.EventDeliveries.WithLabelValues(string(e.event)).Add(float64(delivered))
	}
}

// membersOf returns the union of the topics' members sorted by session id.
func (h *Hub) membersOf(topics []topic.Topic) []*Session {
	seen := make(map[*Session]struct{})
	var out []*Session
	for _, t := range topics {
		for s := range h.topics[t] {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (h *Hub) sortedSessions() []*Session {
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Members returns the ids of the sessions currently joined to t, sorted.
func (h *Hub) Members(t topic.Topic) []string {
	var ids []string
	_ = h.do(func() {
		for s := range h.topics[t] {
			ids = append(ids, s.id)
		}
	})
	sort.Strings(ids)
	return ids
}

// TopicsOf returns the topics the session with the given id has joined, sorted.
func (h *Hub) TopicsOf(sessionID string) []topic.Topic {
	var out []topic.Topic
	_ = h.do(func() {
		s, ok := h.sessions[sessionID]
		if !ok {
			return
		}
		for t := range s.topics {
			out = append(out, t)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	n := 0
	_ = h.do(func() { n = len(h.sessions) })
	return n
}

// TopicCount returns the number of non-empty topics.
func (h *Hub) TopicCount() int {
	n := 0
	_ = h.do(func() { n = len(h.topics) })
	return n
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Sessions       int            `json:"sessions"`
	Topics         int            `json:"topics"`
	SessionsByRole map[string]int `json:"sessionsByRole"`
	QueuedEmits    int            `json:"queuedEmits"`
	Running        bool           `json:"running"`

	// OldestSessionAge is the age in seconds of the longest-lived
	// session, 0 with no sessions.
	OldestSessionAge float64 `json:"oldestSessionAgeSeconds"`
}

// Stats returns current counts.
func (h *Hub) Stats() Stats {
	st := Stats{
		SessionsByRole: map[string]int{
			string(auth.RoleUser):   0,
			string(auth.RoleDriver): 0,
			string(auth.RoleAdmin):  0,
		},
		Running: h.Running(),
	}
	_ = h.do(func() {
		st.Sessions = len(h.sessions)
		st.Topics = len(h.topics)
		now := time.Now()
		for _, s := range h.sessions {
			st.SessionsByRole[string(s.identity.Role)]++
			if age := now.Sub(s.ConnectedAt()).Seconds(); age > st.OldestSessionAge {
				st.OldestSessionAge = age
			}
		}
	})
	st.QueuedEmits = len(h.emissions)
	return st
}
