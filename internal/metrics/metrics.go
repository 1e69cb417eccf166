// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

// Package metrics registers the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the instruments for one service instance. Registering on
// an injected registry keeps tests isolated from the default registerer.
type Metrics struct {
	SyncRunsTotal      *prometheus.CounterVec
	SyncDuration       prometheus.Histogram
	ObjectsProcessed   prometheus.Counter
	ObjectsCreated     prometheus.Counter
	ObjectsUpdated     prometheus.Counter
	ObjectsDeleted     prometheus.Counter
	ObjectFailures     prometheus.Counter
	ClientRequests     *prometheus.CounterVec
	AuthAttemptsTotal  *prometheus.CounterVec
	SyncLockContention prometheus.Counter
}

// New registers all instruments on reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SyncRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "sync_runs_total",
			Help:      "Sync runs by operation and final status.",
		}, []string{"operation", "status"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hillsync",
			Name:      "sync_duration_seconds",
			Help:      "Wall-clock duration of completed sync runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ObjectsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "objects_processed_total",
			Help:      "Address-book objects processed across all runs.",
		}),
		ObjectsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "objects_created_total",
			Help:      "Address-book objects created locally.",
		}),
		ObjectsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "objects_updated_total",
			Help:      "Address-book objects updated locally.",
		}),
		ObjectsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "objects_deleted_total",
			Help:      "Stale address-book objects evicted locally.",
		}),
		ObjectFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "object_failures_total",
			Help:      "Per-object failures skipped during sync runs.",
		}),
		ClientRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "client_requests_total",
			Help:      "Firewall API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		AuthAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "auth_attempts_total",
			Help:      "Firewall login attempts by outcome.",
		}, []string{"outcome"}),
		SyncLockContention: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hillsync",
			Name:      "sync_lock_contention_total",
			Help:      "Sync invocations skipped because the advisory lock was held.",
		}),
	}
}
