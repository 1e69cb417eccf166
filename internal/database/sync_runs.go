// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

/*
sync_runs.go - Sync Run Ledger

Append-only record of reconciliation attempts. Runs move started ->
{completed|failed} and terminal states are final: MarkSyncRunCompleted and
MarkSyncRunFailed only touch rows still in 'started', so whichever terminal
call lands first wins and completed_at is written exactly once.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/hillsync/internal/models"
)

// CreateSyncRun inserts a fresh run in the started state and returns it.
func (db *DB) CreateSyncRun(ctx context.Context, operation models.SyncOperation) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:        uuid.NewString(),
		Operation: operation,
		Status:    models.SyncStatusStarted,
		StartedAt: time.Now().UTC(),
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_runs (id, operation, status, started_at)
		VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Operation), string(run.Status), run.StartedAt)
	if err != nil {
		return nil, &PersistenceError{Op: "create sync run", Err: err}
	}
	return run, nil
}

// UpdateSyncRunProgress persists incremental counters so a concurrent status
// query sees live progress. Progress writes are allowed only while the run is
// still open.
func (db *DB) UpdateSyncRunProgress(ctx context.Context, run *models.SyncRun) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sync_runs
		SET objects_processed = ?, objects_created = ?, objects_updated = ?, objects_deleted = ?
		WHERE id = ? AND status = 'started'`,
		run.ObjectsProcessed, run.ObjectsCreated, run.ObjectsUpdated, run.ObjectsDeleted, run.ID)
	if err != nil {
		return &PersistenceError{Op: "update sync run progress", Err: err}
	}
	return nil
}

// MarkSyncRunCompleted finalizes the run as completed with its counters. Only
// a row still in 'started' is touched; the first terminal call wins.
func (db *DB) MarkSyncRunCompleted(ctx context.Context, run *models.SyncRun) error {
	now := time.Now().UTC()
	result, err := db.conn.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = 'completed', completed_at = ?,
			objects_processed = ?, objects_created = ?, objects_updated = ?, objects_deleted = ?
		WHERE id = ? AND status = 'started'`,
		now, run.ObjectsProcessed, run.ObjectsCreated, run.ObjectsUpdated, run.ObjectsDeleted, run.ID)
	if err != nil {
		return &PersistenceError{Op: "complete sync run", Err: err}
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		run.Status = models.SyncStatusCompleted
		run.CompletedAt = &now
	}
	return nil
}

// MarkSyncRunFailed finalizes the run as failed with an error message. Only a
// row still in 'started' is touched; the first terminal call wins.
func (db *DB) MarkSyncRunFailed(ctx context.Context, run *models.SyncRun, message string) error {
	now := time.Now().UTC()
	result, err := db.conn.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = 'failed', completed_at = ?, error_message = ?,
			objects_processed = ?, objects_created = ?, objects_updated = ?, objects_deleted = ?
		WHERE id = ? AND status = 'started'`,
		now, message, run.ObjectsProcessed, run.ObjectsCreated, run.ObjectsUpdated, run.ObjectsDeleted, run.ID)
	if err != nil {
		return &PersistenceError{Op: "fail sync run", Err: err}
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		run.Status = models.SyncStatusFailed
		run.CompletedAt = &now
		run.ErrorMessage = &message
	}
	return nil
}

// GetSyncRun loads one run by ID, or (nil, nil) when absent.
func (db *DB) GetSyncRun(ctx context.Context, id string) (*models.SyncRun, error) {
	return db.scanSyncRun(db.conn.QueryRowContext(ctx, `
		SELECT id, operation, status, objects_processed, objects_created,
			objects_updated, objects_deleted, error_message, started_at, completed_at
		FROM sync_runs WHERE id = ?`, id))
}

// LatestSyncRun returns the most recently started run, or (nil, nil) when the
// ledger is empty.
func (db *DB) LatestSyncRun(ctx context.Context) (*models.SyncRun, error) {
	return db.scanSyncRun(db.conn.QueryRowContext(ctx, `
		SELECT id, operation, status, objects_processed, objects_created,
			objects_updated, objects_deleted, error_message, started_at, completed_at
		FROM sync_runs ORDER BY started_at DESC LIMIT 1`))
}

// SyncRunning reports whether any run is still in the started state. This is
// a soft check; the advisory cache lock is the real exclusion primitive.
func (db *DB) SyncRunning(ctx context.Context) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_runs WHERE status = 'started'`).Scan(&count)
	if err != nil {
		return false, &PersistenceError{Op: "check running syncs", Err: err}
	}
	return count > 0, nil
}

// SyncStatistics aggregates ledger totals over a trailing window of days,
// plus the current count of persisted objects.
func (db *DB) SyncStatistics(ctx context.Context, days int) (*models.SyncStatistics, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	stats := &models.SyncStatistics{WindowDays: days}

	var (
		avgSeconds sql.NullFloat64
		lastRunAt  sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(objects_processed), 0),
			COALESCE(SUM(objects_created), 0),
			COALESCE(SUM(objects_updated), 0),
			COALESCE(SUM(objects_deleted), 0),
			AVG(CASE WHEN completed_at IS NOT NULL
				THEN EPOCH(completed_at) - EPOCH(started_at) END),
			MAX(started_at)
		FROM sync_runs WHERE started_at >= ?`, cutoff,
	).Scan(&stats.TotalRuns, &stats.CompletedRuns, &stats.FailedRuns,
		&stats.ObjectsProcessed, &stats.ObjectsCreated, &stats.ObjectsUpdated,
		&stats.ObjectsDeleted, &avgSeconds, &lastRunAt)
	if err != nil {
		return nil, &PersistenceError{Op: "aggregate sync statistics", Err: err}
	}

	if avgSeconds.Valid {
		stats.AvgDurationSeconds = avgSeconds.Float64
	}
	if lastRunAt.Valid {
		ts := lastRunAt.Time
		stats.LastRunAt = &ts
	}

	count, err := db.CountObjects(ctx)
	if err != nil {
		return nil, err
	}
	stats.ObjectCount = count

	return stats, nil
}

// scanSyncRun reads one ledger row; (nil, nil) on no rows.
func (db *DB) scanSyncRun(row *sql.Row) (*models.SyncRun, error) {
	var (
		run          models.SyncRun
		operation    string
		status       string
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(&run.ID, &operation, &status, &run.ObjectsProcessed,
		&run.ObjectsCreated, &run.ObjectsUpdated, &run.ObjectsDeleted,
		&errorMessage, &run.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "scan sync run", Err: err}
	}

	run.Operation = models.SyncOperation(operation)
	run.Status = models.SyncStatus(status)
	if errorMessage.Valid {
		msg := errorMessage.String
		run.ErrorMessage = &msg
	}
	if completedAt.Valid {
		ts := completedAt.Time
		run.CompletedAt = &ts
	}
	return &run, nil
}

// PruneSyncRuns removes terminal ledger rows older than cutoff, returning the
// number pruned. Open runs are never pruned.
func (db *DB) PruneSyncRuns(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM sync_runs
		WHERE started_at < ? AND status IN ('completed', 'failed')`, cutoff)
	if err != nil {
		return 0, &PersistenceError{Op: "prune sync runs", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}
