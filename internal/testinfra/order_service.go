// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package testinfra

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
)

// MockOrder is an order record served by MockOrderService.
type MockOrder struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	DriverID   string `json:"driverId,omitempty"`
	Status     string `json:"status"`
}

// MockOrderService is an order-management service double answering
// GET /orders/{id}. It records how many lookups it served.
type MockOrderService struct {
	Server *httptest.Server

	mu     sync.Mutex
	orders map[string]MockOrder

	// Token, when set, is the bearer token every request must carry.
	Token string

	failWith atomic.Int32 // status forced on every request when non-zero
	requests atomic.Int64
}

// NewMockOrderService starts the service; it is closed when the test ends.
func NewMockOrderService(t testing.TB) *MockOrderService {
	t.Helper()

	m := &MockOrderService{orders: make(map[string]MockOrder)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockOrderService) serve(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	if code := m.failWith.Load(); code != 0 {
		w.WriteHeader(int(code))
		return
	}
	if m.Token != "" && r.Header.Get("Authorization") != "Bearer "+m.Token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/orders/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/orders/")
	m.mu.Lock()
	order, ok := m.orders[id]
	m.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(order)
}

// URL returns the base URL.
func (m *MockOrderService) URL() string {
	return m.Server.URL
}

// Put stores or replaces an order.
func (m *MockOrderService) Put(o MockOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderID] = o
}

// FailWith makes every request return status; 0 restores normal behavior.
func (m *MockOrderService) FailWith(status int) {
	m.failWith.Store(int32(status))
}

// Requests returns the number of requests served.
func (m *MockOrderService) Requests() int64 {
	return m.requests.Load()
}
