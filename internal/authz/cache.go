// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package authz

import (
	"sync"
	"time"
)

// Expired entries are overwritten on the next miss. The table is reset
// once it holds maxDecisions entries.
const maxDecisions = 1024

type decisionKey struct {
	role   string
	action string
}

type decision struct {
	allowed    bool
	generation uint64
	storedAt   time.Time
}

// decisionCache memoizes Enforce results. A nil *decisionCache is valid
// and caches nothing.
type decisionCache struct {
	ttl time.Duration

	mu         sync.RWMutex
	generation uint64
	disabled   bool
	entries    map[decisionKey]decision

	now func() time.Time
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &decisionCache{
		ttl:     ttl,
		entries: make(map[decisionKey]decision),
		now:     time.Now,
	}
}

func (c *decisionCache) lookup(role, action string) (allowed, hit bool) {
	if c == nil {
		return false, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.entries[decisionKey{role, action}]
	if !ok || d.generation != c.generation || c.now().Sub(d.storedAt) >= c.ttl {
		return false, false
	}
	return d.allowed, true
}

// current returns the generation to pass to store for a decision that is
// about to be computed.
func (c *decisionCache) current() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// store records a decision computed while generation was current. It is
// dropped if the policy changed since.
func (c *decisionCache) store(role, action string, allowed bool, generation uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled || generation != c.generation {
		return
	}
	if len(c.entries) >= maxDecisions {
		c.entries = make(map[decisionKey]decision)
	}
	c.entries[decisionKey{role, action}] = decision{
		allowed:    allowed,
		generation: c.generation,
		storedAt:   c.now(),
	}
}

// invalidate makes every stored decision stale without touching the map.
func (c *decisionCache) invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
}

func (c *decisionCache) disable() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.disabled = true
	c.generation++
	c.entries = make(map[decisionKey]decision)
	c.mu.Unlock()
}

func (c *decisionCache) size() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
