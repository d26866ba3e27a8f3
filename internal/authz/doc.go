// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package authz decides which role may run which realtime command, using a
// Casbin RBAC model.
//
// The embedded policy:
//
//	order:subscribe, order:unsubscribe, admin:orders:unsubscribe   any role
//	admin:orders:subscribe, collaborator:emit                      admin
//	driver:location:update, driver:status:update                   driver
//
// Roles admin and driver inherit from user. Model and policy can be
// replaced with CASBIN_MODEL_PATH and CASBIN_POLICY_PATH. Decisions are
// cached per (role, action) for CASBIN_CACHE_TTL and forgotten whenever
// the policy changes at runtime.
package authz
