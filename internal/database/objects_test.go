// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package database

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/models"
)

// newTestDB opens a throwaway DuckDB instance.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory: "256MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// objectData builds store input with a detail row carrying the given IPs.
func objectData(name string, ips ...string) *models.ObjectData {
	members := make([]models.Member, 0, len(ips))
	for _, ip := range ips {
		members = append(members, models.Member{Value: ip, Type: models.MemberTypeIPv4})
	}
	return &models.ObjectData{
		Name:    name,
		Members: members,
		Detail:  &models.ObjectDetailData{IPs: ips},
	}
}

func entryIPs(t *testing.T, obj *models.HillstoneObject) []string {
	t.Helper()
	if obj.Detail == nil {
		t.Fatal("object has no detail row")
	}
	ips := make([]string, 0, len(obj.Detail.Entries))
	for _, entry := range obj.Detail.Entries {
		ips = append(ips, entry.RawIP)
	}
	sort.Strings(ips)
	return ips
}

func TestUpsertObjectCreate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	obj, err := db.UpsertObject(ctx, objectData("web", "10.0.0.1/32"))
	if err != nil {
		t.Fatalf("UpsertObject failed: %v", err)
	}

	if obj.Name != "web" {
		t.Errorf("Name = %q, want web", obj.Name)
	}
	if obj.LastSyncedAt == nil {
		t.Error("LastSyncedAt should be set")
	}
	if obj.Detail == nil {
		t.Fatal("Detail should be created")
	}
	if len(obj.Detail.Entries) != 1 {
		t.Fatalf("got %d IP entries, want 1", len(obj.Detail.Entries))
	}
	entry := obj.Detail.Entries[0]
	if entry.RawIP != "10.0.0.1/32" {
		t.Errorf("RawIP = %q, want 10.0.0.1/32", entry.RawIP)
	}
	if entry.ParsedAddress != "10.0.0.1" || entry.Netmask != "32" {
		t.Errorf("parsed = %q/%q, want 10.0.0.1/32", entry.ParsedAddress, entry.Netmask)
	}
}

func TestUpsertObjectReplacesIPSet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertObject(ctx, objectData("web", "10.0.0.1", "10.0.0.2")); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	obj, err := db.UpsertObject(ctx, objectData("web", "10.0.0.3"))
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	// Replacement, not merge: only the new IP remains.
	got := entryIPs(t, obj)
	if len(got) != 1 || got[0] != "10.0.0.3" {
		t.Errorf("IP entries = %v, want exactly [10.0.0.3]", got)
	}
}

func TestUpsertObjectIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := db.UpsertObject(ctx, objectData("web", "10.0.0.1")); err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
	}

	count, err := db.CountObjects(ctx)
	if err != nil {
		t.Fatalf("CountObjects failed: %v", err)
	}
	if count != 1 {
		t.Errorf("object count = %d, want 1", count)
	}

	obj, err := db.GetObjectByName(ctx, "web")
	if err != nil {
		t.Fatalf("GetObjectByName failed: %v", err)
	}
	if got := entryIPs(t, obj); len(got) != 1 {
		t.Errorf("IP entries = %v, want exactly one after resync", got)
	}
}

func TestUpsertObjectValidation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		data *models.ObjectData
	}{
		{"nil data", nil},
		{"empty name", &models.ObjectData{Name: ""}},
		{"markup only name", &models.ObjectData{Name: "<script></script>"}},
		{"oversized name", &models.ObjectData{Name: strings.Repeat("x", 300)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.UpsertObject(ctx, tt.data)
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
		})
	}

	// Nothing may have been persisted.
	count, err := db.CountObjects(ctx)
	if err != nil {
		t.Fatalf("CountObjects failed: %v", err)
	}
	if count != 0 {
		t.Errorf("object count = %d, want 0 after rejected writes", count)
	}
}

func TestUpsertObjectStoresInvalidIPAsIs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	obj, err := db.UpsertObject(ctx, objectData("odd", "not-an-ip"))
	if err != nil {
		t.Fatalf("UpsertObject failed: %v", err)
	}
	if len(obj.Detail.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(obj.Detail.Entries))
	}
	if obj.Detail.Entries[0].ParsedAddress != "not-an-ip" {
		t.Errorf("ParsedAddress = %q, want the raw value preserved", obj.Detail.Entries[0].ParsedAddress)
	}
}

func TestGetObjectByNameMiss(t *testing.T) {
	db := newTestDB(t)

	obj, err := db.GetObjectByName(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetObjectByName failed: %v", err)
	}
	if obj != nil {
		t.Errorf("obj = %+v, want nil on miss", obj)
	}
}

func TestDeleteStale(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertObject(ctx, objectData("old", "10.0.0.1")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := db.UpsertObject(ctx, objectData("fresh", "10.0.0.2")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Backdate one object past the cutoff.
	staleTime := time.Now().UTC().Add(-48 * time.Hour)
	for _, stmt := range []string{
		`UPDATE objects SET last_synced_at = ? WHERE name = 'old'`,
		`UPDATE object_details SET last_synced_at = ? WHERE name = 'old'`,
	} {
		if _, err := db.Conn().ExecContext(ctx, stmt, staleTime); err != nil {
			t.Fatalf("backdate failed: %v", err)
		}
	}

	deleted, err := db.DeleteStale(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if obj, _ := db.GetObjectByName(ctx, "old"); obj != nil {
		t.Error("stale object should be gone")
	}
	if obj, _ := db.GetObjectByName(ctx, "fresh"); obj == nil {
		t.Error("fresh object should survive")
	}

	// Dependent rows are gone too.
	var orphans int
	if err := db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ip_entries WHERE detail_name = 'old'`).Scan(&orphans); err != nil {
		t.Fatalf("orphan query failed: %v", err)
	}
	if orphans != 0 {
		t.Errorf("orphaned ip entries = %d, want 0", orphans)
	}
}

func TestDeleteStaleMultipleObjects(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := db.UpsertObject(ctx, objectData(name, "10.0.0.1")); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	staleTime := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := db.Conn().ExecContext(ctx,
		`UPDATE objects SET last_synced_at = ?`, staleTime); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	// Each eviction commits independently; all three must land.
	deleted, err := db.DeleteStale(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	count, err := db.CountObjects(ctx)
	if err != nil {
		t.Fatalf("CountObjects failed: %v", err)
	}
	if count != 0 {
		t.Errorf("object count = %d, want 0", count)
	}
}

func TestDeleteStaleCutoffIsStrict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertObject(ctx, objectData("edge", "10.0.0.1")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	cutoff := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if _, err := db.Conn().ExecContext(ctx,
		`UPDATE objects SET last_synced_at = ? WHERE name = 'edge'`, cutoff); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	// last_synced_at exactly equal to the cutoff must survive.
	deleted, err := db.DeleteStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteStale failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 at the exact boundary", deleted)
	}
}

func TestDeleteStaleNullLastSynced(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertObject(ctx, objectData("nullish", "10.0.0.1")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := db.Conn().ExecContext(ctx,
		`UPDATE objects SET last_synced_at = NULL WHERE name = 'nullish'`); err != nil {
		t.Fatalf("null update failed: %v", err)
	}

	deleted, err := db.DeleteStale(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 (null last_synced_at is stale)", deleted)
	}
}
