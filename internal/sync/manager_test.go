// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomtom215/hillsync/internal/cache"
	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/hillstone"
	"github.com/tomtom215/hillsync/internal/metrics"
	"github.com/tomtom215/hillsync/internal/models"
)

func managerConfig() *config.Config {
	cfg := engineConfig()
	cfg.Cache.LockTTL = time.Minute
	return cfg
}

func newTestManager(cfg *config.Config, store Store, locks cache.Store) *Manager {
	m := metrics.New(prometheus.NewRegistry())
	engine := NewEngine(cfg, &fakeClient{objects: []models.AddressBookObject{remoteObject("web")}}, store, m, nil)
	return NewManager(cfg, engine, locks, m)
}

func TestManagerSyncAllReleasesLock(t *testing.T) {
	locks := cache.NewMemoryStore()
	manager := newTestManager(managerConfig(), newFakeStore(), locks)
	ctx := context.Background()

	if _, err := manager.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if _, held := locks.Get(fullSyncLockKey); held {
		t.Error("full-sync lock should be released after the run")
	}

	// A second run acquires the lock again.
	if _, err := manager.SyncAll(ctx); err != nil {
		t.Fatalf("second SyncAll failed: %v", err)
	}
}

func TestManagerSyncAllLockContention(t *testing.T) {
	locks := cache.NewMemoryStore()
	if err := locks.Put(fullSyncLockKey, []byte("held"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	manager := newTestManager(managerConfig(), newFakeStore(), locks)
	_, err := manager.SyncAll(context.Background())
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("error = %v, want ErrSyncInProgress", err)
	}
}

func TestManagerLockReleasedOnFailure(t *testing.T) {
	locks := cache.NewMemoryStore()
	store := newFakeStore()
	cfg := managerConfig()

	m := metrics.New(prometheus.NewRegistry())
	engine := NewEngine(cfg, &fakeClient{authErr: errors.New("login rejected")}, store, m, nil)
	manager := NewManager(cfg, engine, locks, m)

	if _, err := manager.SyncAll(context.Background()); err == nil {
		t.Fatal("SyncAll should fail")
	}
	// Released on the final outcome, success or failure alike.
	if _, held := locks.Get(fullSyncLockKey); held {
		t.Error("lock should be released after a failed run")
	}
}

func TestManagerObjectLockIndependentOfFullLock(t *testing.T) {
	locks := cache.NewMemoryStore()
	if err := locks.Put(fullSyncLockKey, []byte("held"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// An open full-sync ledger row alongside the held cache flag: neither
	// may block a single-object run, even with the ledger pre-check on.
	store := newFakeStore()
	if _, err := store.CreateSyncRun(context.Background(), models.SyncOperationFull); err != nil {
		t.Fatalf("CreateSyncRun failed: %v", err)
	}

	cfg := managerConfig()
	cfg.Sync.PreventConcurrentSyncs = true
	m := metrics.New(prometheus.NewRegistry())

	engine := NewEngine(cfg, &fakeClient{
		lookups: map[string]hillstone.Lookup{
			"web": hillstone.FoundLookup(remoteObject("web", "10.0.0.1")),
		},
	}, store, m, nil)
	manager := NewManager(cfg, engine, locks, m)

	run, err := manager.SyncObject(context.Background(), "web")
	if err != nil {
		t.Fatalf("SyncObject should not be blocked by the full-sync lock: %v", err)
	}
	if run.Status != models.SyncStatusCompleted {
		t.Errorf("status = %q, want completed", run.Status)
	}
}

func TestManagerObjectLockContention(t *testing.T) {
	locks := cache.NewMemoryStore()
	if err := locks.Put(objectLockKey("web"), []byte("held"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	manager := newTestManager(managerConfig(), newFakeStore(), locks)
	_, err := manager.SyncObject(context.Background(), "web")
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("error = %v, want ErrSyncInProgress", err)
	}
}

func TestManagerLedgerSoftPreCheck(t *testing.T) {
	store := newFakeStore()
	// Simulate an open run in the ledger with a free cache lock.
	if _, err := store.CreateSyncRun(context.Background(), models.SyncOperationFull); err != nil {
		t.Fatalf("CreateSyncRun failed: %v", err)
	}

	cfg := managerConfig()
	cfg.Sync.PreventConcurrentSyncs = true
	manager := newTestManager(cfg, store, cache.NewMemoryStore())

	_, err := manager.SyncAll(context.Background())
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("error = %v, want ErrSyncInProgress from the ledger pre-check", err)
	}
}

func TestManagerStartStop(t *testing.T) {
	cfg := managerConfig()
	cfg.Sync.Interval = 10 * time.Millisecond

	store := newFakeStore()
	manager := newTestManager(cfg, store, cache.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	manager.Stop()

	latest, err := store.LatestSyncRun(context.Background())
	if err != nil {
		t.Fatalf("LatestSyncRun failed: %v", err)
	}
	if latest == nil {
		t.Fatal("scheduler should have produced at least one run")
	}

	// Stop is idempotent.
	manager.Stop()
}

func TestManagerSchedulerPrunesLedger(t *testing.T) {
	cfg := managerConfig()
	cfg.Sync.Interval = 10 * time.Millisecond
	cfg.Sync.RunRetentionDays = 1

	store := newFakeStore()
	store.runs["ancient"] = &models.SyncRun{
		ID:        "ancient",
		Operation: models.SyncOperationFull,
		Status:    models.SyncStatusCompleted,
		StartedAt: time.Now().UTC().Add(-48 * time.Hour),
	}

	manager := newTestManager(cfg, store, cache.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	manager.Stop()

	store.mu.Lock()
	_, kept := store.runs["ancient"]
	store.mu.Unlock()
	if kept {
		t.Error("terminal run past the retention window should be pruned")
	}
}

func TestManagerStartDisabledWithoutInterval(t *testing.T) {
	cfg := managerConfig()
	cfg.Sync.Interval = 0

	manager := newTestManager(cfg, newFakeStore(), cache.NewMemoryStore())
	manager.Start(context.Background())
	manager.Stop() // must not hang with no loop running
}
