// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
)

var (
	//go:embed model.conf
	builtinModel string

	//go:embed policy.csv
	builtinPolicy string
)

// ActionCollaboratorEmit is the action checked on collaborator API calls.
const ActionCollaboratorEmit = "collaborator:emit"

// EnforcerConfig selects where the model and policy come from and whether
// decisions are memoized. Empty paths, or paths that do not exist, fall
// back to the built-in role table.
type EnforcerConfig struct {
	ModelPath  string
	PolicyPath string

	CacheEnabled bool
	CacheTTL     time.Duration
}

// DefaultEnforcerConfig uses the built-in role table with a five minute
// decision cache.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		CacheEnabled: true,
		CacheTTL:     5 * time.Minute,
	}
}

// Enforcer answers "may this role run this action". Actions are realtime
// command names, or ActionCollaboratorEmit for the collaborator API.
type Enforcer struct {
	casbin    *casbin.SyncedEnforcer
	decisions *decisionCache
}

// NewEnforcer loads the model and policy and returns a ready Enforcer.
func NewEnforcer(cfg *EnforcerConfig) (*Enforcer, error) {
	if cfg == nil {
		cfg = DefaultEnforcerConfig()
	}

	m, err := loadModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load authorization model: %w", err)
	}

	se, err := casbin.NewSyncedEnforcer(m, policySource(cfg.PolicyPath))
	if err != nil {
		return nil, fmt.Errorf("load authorization policy: %w", err)
	}

	e := &Enforcer{casbin: se}
	if cfg.CacheEnabled {
		e.decisions = newDecisionCache(cfg.CacheTTL)
	}
	return e, nil
}

func loadModel(path string) (model.Model, error) {
	if exists(path) {
		return model.NewModelFromFile(path)
	}
	return model.NewModelFromString(builtinModel)
}

func policySource(path string) persist.Adapter {
	if exists(path) {
		return fileadapter.NewAdapter(path)
	}
	return stringadapter.NewAdapter(builtinPolicy)
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Allowed reports whether role may perform action.
func (e *Enforcer) Allowed(role, action string) (bool, error) {
	start := time.Now()

	if allowed, hit := e.decisions.lookup(role, action); hit {
		recordDecision(role, action, allowed, true, time.Since(start))
		return allowed, nil
	}

	generation := e.decisions.current()
	allowed, err := e.casbin.Enforce(role, action)
	if err != nil {
		return false, fmt.Errorf("enforce %s/%s: %w", role, action, err)
	}
	e.decisions.store(role, action, allowed, generation)

	recordDecision(role, action, allowed, false, time.Since(start))
	return allowed, nil
}

// AddPolicy grants action to role until the process exits. Policy files
// are never rewritten.
func (e *Enforcer) AddPolicy(role, action string) (bool, error) {
	added, err := e.casbin.AddPolicy(role, action)
	if err != nil {
		return false, fmt.Errorf("grant %s to %s: %w", action, role, err)
	}
	e.decisions.invalidate()
	return added, nil
}

// RemovePolicy revokes a grant made by the policy or by AddPolicy.
func (e *Enforcer) RemovePolicy(role, action string) (bool, error) {
	removed, err := e.casbin.RemovePolicy(role, action)
	if err != nil {
		return false, fmt.Errorf("revoke %s from %s: %w", action, role, err)
	}
	e.decisions.invalidate()
	return removed, nil
}

// GetPolicy returns the p rules currently loaded.
func (e *Enforcer) GetPolicy() ([][]string, error) {
	return e.casbin.GetPolicy()
}

// Close drops every memoized decision. Allowed keeps working afterwards,
// it just goes to casbin every time.
func (e *Enforcer) Close() {
	e.decisions.disable()
}
