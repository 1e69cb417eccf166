// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

/*
engine.go - Reconciliation Engine

Pulls address-book objects from the firewall and reconciles them into the
local store, batch by batch, recording progress in the sync-run ledger.

Run discipline:
  - Every invocation opens a ledger entry first, so even an immediate
    authentication failure leaves an auditable failed run
  - Per-object failures are logged, counted, and skipped; they never abort
    the run (partial success is the documented policy)
  - Engine-level failures (auth, listing, cleanup) mark the run failed with
    the error message and propagate to the caller
  - Counters are flushed to the ledger after every batch so a concurrent
    status query sees live progress
  - Cancellation is honored at batch boundaries

The conflict policy is evaluated once per object immediately before the
upsert: latest_wins always writes, skip_existing leaves an existing local
record untouched (counted neither created nor updated).
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/hillstone"
	"github.com/tomtom215/hillsync/internal/logging"
	"github.com/tomtom215/hillsync/internal/metrics"
	"github.com/tomtom215/hillsync/internal/models"
)

// Store is the persistence capability the engine consumes: the local object
// store plus the sync-run ledger.
type Store interface {
	UpsertObject(ctx context.Context, data *models.ObjectData) (*models.HillstoneObject, error)
	GetObjectByName(ctx context.Context, name string) (*models.HillstoneObject, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)

	CreateSyncRun(ctx context.Context, operation models.SyncOperation) (*models.SyncRun, error)
	UpdateSyncRunProgress(ctx context.Context, run *models.SyncRun) error
	MarkSyncRunCompleted(ctx context.Context, run *models.SyncRun) error
	MarkSyncRunFailed(ctx context.Context, run *models.SyncRun, message string) error
	LatestSyncRun(ctx context.Context) (*models.SyncRun, error)
	SyncRunning(ctx context.Context) (bool, error)
	SyncStatistics(ctx context.Context, days int) (*models.SyncStatistics, error)
	PruneSyncRuns(ctx context.Context, cutoff time.Time) (int, error)
}

// Engine reconciles remote address-book state into the local store. It has
// no internal parallelism; overlap between invocations is prevented by the
// Manager's advisory locks.
type Engine struct {
	cfg       *config.Config
	client    hillstone.Interface
	store     Store
	metrics   *metrics.Metrics
	publisher EventPublisher
}

// NewEngine wires a reconciliation engine. publisher may be nil; events are
// then discarded.
func NewEngine(cfg *config.Config, client hillstone.Interface, store Store, m *metrics.Metrics, publisher EventPublisher) *Engine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Engine{
		cfg:       cfg,
		client:    client,
		store:     store,
		metrics:   m,
		publisher: publisher,
	}
}

// SyncAll performs a full reconciliation: list every remote object, upsert
// each by batch, then evict stale local records. The returned run reflects
// the final ledger state even when an error is also returned.
func (e *Engine) SyncAll(ctx context.Context) (*models.SyncRun, error) {
	run, err := e.store.CreateSyncRun(ctx, models.SyncOperationFull)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync run: %w", err)
	}
	log := logging.With().Str("run_id", run.ID).Str("operation", string(run.Operation)).Logger()
	log.Info().Msg("Full sync started")

	if err := e.client.Authenticate(ctx); err != nil {
		return run, e.failRun(ctx, run, "authenticate", err)
	}

	objects, err := e.client.ListObjects(ctx)
	if err != nil {
		return run, e.failRun(ctx, run, "list objects", err)
	}

	batchSize := e.cfg.Sync.BatchSize
	for start := 0; start < len(objects); start += batchSize {
		if err := ctx.Err(); err != nil {
			return run, e.failRun(ctx, run, "batch loop", err)
		}

		end := min(start+batchSize, len(objects))
		for _, obj := range objects[start:end] {
			e.reconcileObject(ctx, run, obj)
		}

		if err := e.store.UpdateSyncRunProgress(ctx, run); err != nil {
			log.Warn().Err(err).Msg("Failed to persist batch progress")
		}
		log.Debug().
			Int("processed", run.ObjectsProcessed).
			Int("total", len(objects)).
			Msg("Batch completed")
	}

	if e.cfg.Sync.CleanupAfterDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -e.cfg.Sync.CleanupAfterDays)
		deleted, err := e.store.DeleteStale(ctx, cutoff)
		if err != nil {
			return run, e.failRun(ctx, run, "stale cleanup", err)
		}
		run.ObjectsDeleted += deleted
		e.metrics.ObjectsDeleted.Add(float64(deleted))
	}

	if err := e.store.MarkSyncRunCompleted(ctx, run); err != nil {
		return run, fmt.Errorf("failed to finalize sync run: %w", err)
	}

	e.metrics.SyncRunsTotal.WithLabelValues(string(run.Operation), string(run.Status)).Inc()
	e.metrics.SyncDuration.Observe(run.Duration().Seconds())
	e.publisher.SyncCompleted(ctx, run)

	log.Info().
		Int("processed", run.ObjectsProcessed).
		Int("created", run.ObjectsCreated).
		Int("updated", run.ObjectsUpdated).
		Int("deleted", run.ObjectsDeleted).
		Dur("duration", run.Duration()).
		Msg("Full sync completed")
	return run, nil
}

// SyncSpecific reconciles a single object by name. A remote miss fails the
// run with a descriptive message.
func (e *Engine) SyncSpecific(ctx context.Context, name string) (*models.SyncRun, error) {
	run, err := e.store.CreateSyncRun(ctx, models.SyncOperationSingleObject)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync run: %w", err)
	}
	log := logging.With().Str("run_id", run.ID).Str("name", name).Logger()
	log.Info().Msg("Single-object sync started")

	if err := e.client.Authenticate(ctx); err != nil {
		return run, e.failRun(ctx, run, "authenticate", err)
	}

	lookup, err := e.client.GetObject(ctx, name)
	if err != nil {
		return run, e.failRun(ctx, run, "fetch object", err)
	}
	obj, found := lookup.Object()
	if !found {
		return run, e.failRun(ctx, run, "fetch object",
			fmt.Errorf("remote address-book object %q not found", name))
	}

	e.reconcileObject(ctx, run, obj)

	if err := e.store.MarkSyncRunCompleted(ctx, run); err != nil {
		return run, fmt.Errorf("failed to finalize sync run: %w", err)
	}

	e.metrics.SyncRunsTotal.WithLabelValues(string(run.Operation), string(run.Status)).Inc()
	e.publisher.SyncCompleted(ctx, run)

	log.Info().
		Int("created", run.ObjectsCreated).
		Int("updated", run.ObjectsUpdated).
		Msg("Single-object sync completed")
	return run, nil
}

// GetLastSyncStatus returns the most recent ledger entry, or (nil, nil) when
// no sync has ever run.
func (e *Engine) GetLastSyncStatus(ctx context.Context) (*models.SyncRun, error) {
	return e.store.LatestSyncRun(ctx)
}

// IsSyncRunning reports whether the ledger shows an open run. This is a soft
// check; the Manager's advisory lock is the exclusion primitive.
func (e *Engine) IsSyncRunning(ctx context.Context) (bool, error) {
	return e.store.SyncRunning(ctx)
}

// GetSyncStatistics aggregates ledger totals over a trailing window of days.
func (e *Engine) GetSyncStatistics(ctx context.Context, days int) (*models.SyncStatistics, error) {
	return e.store.SyncStatistics(ctx, days)
}

// reconcileObject applies the conflict policy and upserts one remote object,
// classifying the outcome into the run counters. Failures are logged and
// skipped; the run carries on.
func (e *Engine) reconcileObject(ctx context.Context, run *models.SyncRun, obj models.AddressBookObject) {
	run.ObjectsProcessed++
	e.metrics.ObjectsProcessed.Inc()

	existing, err := e.store.GetObjectByName(ctx, obj.Name)
	if err != nil {
		e.recordObjectFailure(run, obj.Name, "lookup", err)
		return
	}

	if existing != nil && e.cfg.Sync.ConflictPolicy == config.ConflictPolicySkipExisting {
		logging.Debug().Str("run_id", run.ID).Str("name", obj.Name).Msg("Skipping existing object per conflict policy")
		return
	}

	if _, err := e.store.UpsertObject(ctx, buildObjectData(obj)); err != nil {
		e.recordObjectFailure(run, obj.Name, "upsert", err)
		return
	}

	if existing == nil {
		run.ObjectsCreated++
		e.metrics.ObjectsCreated.Inc()
	} else {
		run.ObjectsUpdated++
		e.metrics.ObjectsUpdated.Inc()
	}
}

// recordObjectFailure logs one skipped object without failing the run.
func (e *Engine) recordObjectFailure(run *models.SyncRun, name, op string, err error) {
	e.metrics.ObjectFailures.Inc()
	logging.Warn().
		Err(err).
		Str("run_id", run.ID).
		Str("name", name).
		Str("op", op).
		Msg("Object reconciliation failed, skipping")
}

// failRun finalizes the run as failed and wraps the cause.
func (e *Engine) failRun(ctx context.Context, run *models.SyncRun, op string, cause error) error {
	message := fmt.Sprintf("%s: %v", op, cause)
	if err := e.store.MarkSyncRunFailed(ctx, run, message); err != nil {
		logging.Error().Err(err).Str("run_id", run.ID).Msg("Failed to record run failure")
	}

	e.metrics.SyncRunsTotal.WithLabelValues(string(run.Operation), string(models.SyncStatusFailed)).Inc()
	e.publisher.SyncFailed(ctx, run, cause)

	logging.Error().Err(cause).Str("run_id", run.ID).Str("op", op).Msg("Sync run failed")
	return &ReconciliationError{RunID: run.ID, Op: op, Err: cause}
}

// buildObjectData converts a normalized remote object into store input. The
// member values also feed the detail row so IP entries mirror the remote
// member set exactly.
func buildObjectData(obj models.AddressBookObject) *models.ObjectData {
	return &models.ObjectData{
		Name:       obj.Name,
		Members:    obj.Members,
		IsIPv6:     obj.IsIPv6,
		Predefined: obj.Predefined,
		Detail: &models.ObjectDetailData{
			IPs: obj.MemberValues(),
		},
	}
}
