// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package orderdir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ordertrail/internal/auth"
	"github.com/tomtom215/ordertrail/internal/breaker"
	"github.com/tomtom215/ordertrail/internal/cache"
	"github.com/tomtom215/ordertrail/internal/logging"
)

// HTTPConfig configures an HTTPDirectory.
type HTTPConfig struct {
	// BaseURL of the order-management service. Orders are fetched from
	// {BaseURL}/orders/{id}.
	BaseURL string

	// ServiceToken is sent as a bearer token on every lookup.
	ServiceToken string

	// Timeout bounds a single lookup.
	Timeout time.Duration

	// CacheTTL is how long a fetched order is reused.
	CacheTTL time.Duration

	// CacheSize bounds the number of cached orders.
	CacheSize int

	// BreakerMaxFailures and BreakerTimeout configure the circuit breaker.
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// HTTPDirectory resolves orders against the order-management service.
type HTTPDirectory struct {
	base    *url.URL
	token   string
	client  *http.Client
	breaker *breaker.Breaker[*Order]
	orders  *cache.LRU[*Order]
}

// NewHTTPDirectory creates a directory client.
func NewHTTPDirectory(cfg HTTPConfig) (*HTTPDirectory, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid order directory URL %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPDirectory{
		base:   base,
		token:  cfg.ServiceToken,
		client: client,
		breaker: breaker.New[*Order](breaker.Settings{
			Name:        "order-directory",
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrOrderNotFound)
			},
		}),
		orders: cache.NewLRU[*Order](cfg.CacheSize, cfg.CacheTTL),
	}, nil
}

// Lookup returns the order record, from cache when fresh.
func (d *HTTPDirectory) Lookup(ctx context.Context, orderID string) (*Order, error) {
	if o, ok := d.orders.Get(orderID); ok {
		return o, nil
	}
	return d.refresh(ctx, orderID)
}

// refresh fetches the order through the breaker and replaces the cached
// copy.
func (d *HTTPDirectory) refresh(ctx context.Context, orderID string) (*Order, error) {
	o, err := d.breaker.Execute(func() (*Order, error) {
		return d.fetch(ctx, orderID)
	})
	if err != nil {
		if breaker.IsRejected(err) {
			return nil, fmt.Errorf("order directory unavailable: %w", err)
		}
		return nil, err
	}

	d.orders.Add(orderID, o)
	return o, nil
}

// CurrentStatus returns the persisted status of the order.
func (d *HTTPDirectory) CurrentStatus(ctx context.Context, orderID string) (string, error) {
	o, err := d.Lookup(ctx, orderID)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// CanTrack allows admins without a lookup; everyone else must be the
// order's customer or assigned driver. Unknown orders are not trackable.
// A deny based on a cached record is re-checked against the service
// before it is returned.
func (d *HTTPDirectory) CanTrack(ctx context.Context, orderID string, id *auth.Identity) (bool, error) {
	if id != nil && id.Role == auth.RoleAdmin {
		return true, nil
	}

	if o, ok := d.orders.Get(orderID); ok && o.TrackableBy(id) {
		return true, nil
	}

	o, err := d.refresh(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return o.TrackableBy(id), nil
}

// Invalidate drops the cached order.
func (d *HTTPDirectory) Invalidate(orderID string) {
	d.orders.Remove(orderID)
}

// BreakerState exposes the circuit state for health reporting.
func (d *HTTPDirectory) BreakerState() string {
	return d.breaker.State()
}

func (d *HTTPDirectory) fetch(ctx context.Context, orderID string) (*Order, error) {
	u := d.base.JoinPath("orders", orderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order lookup %s: %w", orderID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrOrderNotFound
	case resp.StatusCode != http.StatusOK:
		logging.Warn().
			Str("order_id", orderID).
			Int("status", resp.StatusCode).
			Msg("Order directory lookup failed")
		return nil, fmt.Errorf("order lookup %s: unexpected status %d", orderID, resp.StatusCode)
	}

	var o Order
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&o); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	if o.OrderID == "" {
		o.OrderID = orderID
	}
	return &o, nil
}
