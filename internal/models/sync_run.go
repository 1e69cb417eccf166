// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package models

import "time"

// SyncOperation identifies the kind of a sync run.
type SyncOperation string

// Sync run operation kinds.
const (
	SyncOperationFull         SyncOperation = "full_sync"
	SyncOperationPartial      SyncOperation = "partial_sync"
	SyncOperationSingleObject SyncOperation = "single_object_sync"
)

// SyncStatus is the lifecycle state of a sync run.
// Transitions: started -> {completed | failed}. Terminal states are final;
// a failed run is never resumed, a fresh run is started instead.
type SyncStatus string

// Sync run statuses.
const (
	SyncStatusStarted   SyncStatus = "started"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun is one append-only ledger entry recording a sync attempt. Counters
// are updated incrementally as batches complete so a concurrent status query
// sees live progress rather than only the final tally.
//
// Invariant: CompletedAt is set iff Status is completed or failed.
type SyncRun struct {
	ID               string        `json:"id"`
	Operation        SyncOperation `json:"operation"`
	Status           SyncStatus    `json:"status"`
	ObjectsProcessed int           `json:"objects_processed"`
	ObjectsCreated   int           `json:"objects_created"`
	ObjectsUpdated   int           `json:"objects_updated"`
	ObjectsDeleted   int           `json:"objects_deleted"`
	ErrorMessage     *string       `json:"error_message,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Terminal reports whether the run has reached a final state.
func (r *SyncRun) Terminal() bool {
	return r.Status == SyncStatusCompleted || r.Status == SyncStatusFailed
}

// Duration returns the run duration, or zero while the run is still open.
func (r *SyncRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// SyncStatistics aggregates the ledger over a trailing window of days.
type SyncStatistics struct {
	WindowDays         int        `json:"window_days"`
	TotalRuns          int        `json:"total_runs"`
	CompletedRuns      int        `json:"completed_runs"`
	FailedRuns         int        `json:"failed_runs"`
	ObjectsProcessed   int        `json:"objects_processed"`
	ObjectsCreated     int        `json:"objects_created"`
	ObjectsUpdated     int        `json:"objects_updated"`
	ObjectsDeleted     int        `json:"objects_deleted"`
	ObjectCount        int        `json:"object_count"`
	AvgDurationSeconds float64    `json:"avg_duration_seconds"`
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
}
