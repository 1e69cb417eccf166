// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

/*
manager.go - Sync Lifecycle and Advisory Locking

Wraps the reconciliation engine with overlap protection and the periodic
scheduler loop.

Locking:
Mutual exclusion between overlapping sync invocations uses TTL flags in the
shared cache store: "lock:sync:all" for full syncs and a per-object
"lock:sync:obj:<hash>" for single-object syncs, acquired with PutIfAbsent and
released only when the run reaches its final outcome. The TTL bounds how long
a crashed holder can block successors. This is advisory locking for a single
active scheduler, not a distributed lock.

The ledger's open-run check is an additional soft pre-check (config
prevent_concurrent_syncs); the cache flag remains the real primitive.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	stdsync "sync"
	"time"

	"github.com/tomtom215/hillsync/internal/cache"
	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/logging"
	"github.com/tomtom215/hillsync/internal/metrics"
	"github.com/tomtom215/hillsync/internal/models"
)

// fullSyncLockKey guards full reconciliation runs.
const fullSyncLockKey = "lock:sync:all"

// Manager serializes sync invocations and drives the periodic scheduler.
type Manager struct {
	cfg     *config.Config
	engine  *Engine
	locks   cache.Store
	metrics *metrics.Metrics

	wg     stdsync.WaitGroup
	cancel context.CancelFunc
	once   stdsync.Once
}

// NewManager wires the lifecycle manager. locks is the shared cache store
// also holding sessions.
func NewManager(cfg *config.Config, engine *Engine, locks cache.Store, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:     cfg,
		engine:  engine,
		locks:   locks,
		metrics: m,
	}
}

// SyncAll runs a full reconciliation under the full-sync advisory lock.
// Returns ErrSyncInProgress when the lock is already held.
func (m *Manager) SyncAll(ctx context.Context) (*models.SyncRun, error) {
	release, err := m.acquireLock(ctx, fullSyncLockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	return m.engine.SyncAll(ctx)
}

// SyncObject runs a single-object reconciliation under that object's
// advisory lock, independent of the full-sync lock.
func (m *Manager) SyncObject(ctx context.Context, name string) (*models.SyncRun, error) {
	release, err := m.acquireLock(ctx, objectLockKey(name))
	if err != nil {
		return nil, err
	}
	defer release()

	return m.engine.SyncSpecific(ctx, name)
}

// Engine exposes the wrapped engine for read-only status queries.
func (m *Manager) Engine() *Engine {
	return m.engine
}

// acquireLock takes one advisory TTL flag. The returned release function
// must run after the sync reaches its final outcome.
func (m *Manager) acquireLock(ctx context.Context, key string) (func(), error) {
	// The ledger pre-check guards full syncs only: a single-object sync may
	// run alongside an open full run, so its open ledger row is not a reason
	// to refuse the object lock.
	if key == fullSyncLockKey && m.cfg.Sync.PreventConcurrentSyncs {
		// Soft pre-check against the ledger; errors here only log.
		if running, err := m.engine.IsSyncRunning(ctx); err != nil {
			logging.Warn().Err(err).Msg("Ledger overlap pre-check failed")
		} else if running {
			m.metrics.SyncLockContention.Inc()
			return nil, ErrSyncInProgress
		}
	}

	acquired, err := m.locks.PutIfAbsent(key, []byte(time.Now().UTC().Format(time.RFC3339)), m.cfg.Cache.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock %s: %w", key, err)
	}
	if !acquired {
		m.metrics.SyncLockContention.Inc()
		return nil, ErrSyncInProgress
	}

	return func() {
		if err := m.locks.Forget(key); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("Failed to release sync lock")
		}
	}, nil
}

// objectLockKey derives the per-object lock key from an FNV-1a hash so
// arbitrary object names stay safe as cache keys.
func objectLockKey(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("lock:sync:obj:%08x", h.Sum32())
}

// Start launches the periodic full-sync loop when sync.interval is positive.
// Idempotent per manager; call Stop to shut the loop down.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.Sync.Interval <= 0 {
		logging.Info().Msg("Periodic sync disabled")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.syncLoop(loopCtx)

	logging.Info().Dur("interval", m.cfg.Sync.Interval).Msg("Periodic sync started")
}

// syncLoop ticks at the configured interval until the context ends. A held
// lock makes the tick a no-op rather than an error.
func (m *Manager) syncLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SyncAll(ctx); err != nil {
				if errors.Is(err, ErrSyncInProgress) {
					logging.Debug().Msg("Scheduled sync skipped, previous run still in progress")
					continue
				}
				logging.Error().Err(err).Msg("Scheduled sync failed")
				continue
			}
			m.pruneLedger(ctx)
		}
	}
}

// pruneLedger evicts terminal ledger rows older than the retention window
// after each scheduled run. Pruning failures only log; the next tick retries.
func (m *Manager) pruneLedger(ctx context.Context) {
	days := m.cfg.Sync.RunRetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	pruned, err := m.engine.store.PruneSyncRuns(ctx, cutoff)
	if err != nil {
		logging.Warn().Err(err).Msg("Ledger retention pruning failed")
		return
	}
	if pruned > 0 {
		logging.Info().Int("pruned", pruned).Time("cutoff", cutoff).Msg("Pruned old sync runs")
	}
}

// Stop ends the scheduler loop and waits for an in-flight tick to finish.
func (m *Manager) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		logging.Info().Msg("Periodic sync stopped")
	})
}
