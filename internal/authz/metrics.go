// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordertrail_authz_decisions_total",
			Help: "Command authorization decisions by role, action, outcome and source (cache or policy)",
		},
		[]string{"role", "action", "outcome", "source"},
	)

	commandDecisionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ordertrail_authz_decision_seconds",
			Help:    "Time spent deciding a command authorization",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 7),
		},
	)
)

func recordDecision(role, action string, allowed, cached bool, d time.Duration) {
	outcome, source := "denied", "policy"
	if allowed {
		outcome = "allowed"
	}
	if cached {
		source = "cache"
	}
	commandDecisions.WithLabelValues(role, action, outcome, source).Inc()
	commandDecisionLatency.Observe(d.Seconds())
}
