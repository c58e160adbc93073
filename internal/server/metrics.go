// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the daemon's request/permission/unlock counters, served on
// a loopback-only debug endpoint (never the client socket) by mounting
// promhttp.HandlerFor on the daemon's own registry (cmd/passworthd), the
// way cmd/cie mounts "/metrics".
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	permissionDenied *prometheus.CounterVec
	unlockAttempts   prometheus.Counter
	unlockFailures   prometheus.Counter
}

// NewMetrics registers the daemon's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passworthd_requests_total",
			Help: "Requests handled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passworthd_request_duration_seconds",
			Help:    "Request handling latency by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		permissionDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passworthd_permission_denied_total",
			Help: "Permission denials by required level.",
		}, []string{"level"}),
		unlockAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "passworthd_unlock_attempts_total",
			Help: "Unlock walks driven to completion or failure.",
		}),
		unlockFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "passworthd_unlock_failures_total",
			Help: "Unlock walks that ended in an error.",
		}),
	}
}
