// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

/*
objects.go - Local Object Store

Upserts, name lookups, and stale-record eviction for the persisted mirror of
the firewall address book.

Write discipline:
An object's row, its detail companion, and its IP entries are written in one
transaction. The detail's IP entries are fully replaced on every write
(delete-all-then-insert), never merged, so the entry set always reflects the
latest sync exactly.

IP sanitization favors availability: each IP-like field is trimmed and split
into address and netmask, but a value that fails IP-format validation is
stored as-is with a warning rather than rejected.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/hillsync/internal/logging"
	"github.com/tomtom215/hillsync/internal/models"
	"github.com/tomtom215/hillsync/internal/validation"
)

// maxParsedAddressLength is the longest textual IPv6 form.
const maxParsedAddressLength = 45

// UpsertObject validates data, then writes the object row, its detail row,
// and its IP entries in one transaction. Returns the refreshed record.
//
// A *ValidationError is returned before any write is attempted; storage
// failures roll back the transaction and return a *PersistenceError.
func (db *DB) UpsertObject(ctx context.Context, data *models.ObjectData) (*models.HillstoneObject, error) {
	if data == nil {
		return nil, &ValidationError{Field: "object", Err: fmt.Errorf("object data is nil")}
	}
	if err := validation.ValidateObjectData(data); err != nil {
		return nil, &ValidationError{Field: "name", Err: err}
	}

	membersJSON, err := json.Marshal(data.Members)
	if err != nil {
		return nil, &ValidationError{Field: "members", Err: err}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceError{Op: "begin upsert", Err: err}
	}
	defer rollbackWithLog(tx)

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO objects (name, members, is_ipv6, predefined, last_synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			members = excluded.members,
			is_ipv6 = excluded.is_ipv6,
			predefined = excluded.predefined,
			last_synced_at = excluded.last_synced_at`,
		data.Name, string(membersJSON), data.IsIPv6, data.Predefined, now,
	); err != nil {
		return nil, &PersistenceError{Op: "upsert object", Err: err}
	}

	if data.Detail != nil {
		if err := db.upsertDetailTx(ctx, tx, data, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{Op: "commit upsert", Err: err}
	}

	obj, err := db.GetObjectByName(ctx, data.Name)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &PersistenceError{Op: "reload object", Err: fmt.Errorf("object %q vanished after upsert", data.Name)}
	}
	return obj, nil
}

// upsertDetailTx rewrites the detail row and fully replaces its IP entries
// within the caller's transaction.
func (db *DB) upsertDetailTx(ctx context.Context, tx *sql.Tx, data *models.ObjectData, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO object_details (name, is_ipv6, predefined, flag, last_synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			is_ipv6 = excluded.is_ipv6,
			predefined = excluded.predefined,
			flag = excluded.flag,
			last_synced_at = excluded.last_synced_at`,
		data.Name, data.IsIPv6, data.Predefined, data.Detail.Flag, now,
	); err != nil {
		return &PersistenceError{Op: "upsert detail", Err: err}
	}

	// Full replacement, not merge.
	if _, err := tx.ExecContext(ctx, `DELETE FROM ip_entries WHERE detail_name = ?`, data.Name); err != nil {
		return &PersistenceError{Op: "clear ip entries", Err: err}
	}

	for _, raw := range data.Detail.IPs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, netmask := sanitizeIP(raw)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ip_entries (id, detail_name, raw_ip, parsed_address, netmask, flag)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), data.Name, raw, parsed, netmask, data.Detail.Flag,
		); err != nil {
			return &PersistenceError{Op: "insert ip entry", Err: err}
		}
	}
	return nil
}

// sanitizeIP splits a raw member into address and netmask portions. Values
// that fail IP-format validation are kept as-is with a warning.
func sanitizeIP(raw string) (parsed, netmask string) {
	parsed = raw
	if host, mask, ok := strings.Cut(raw, "/"); ok {
		parsed = strings.TrimSpace(host)
		netmask = strings.TrimSpace(mask)
	}
	if _, err := netip.ParseAddr(parsed); err != nil {
		logging.Warn().Str("ip", raw).Msg("Storing unparseable IP value as-is")
	}
	if len(parsed) > maxParsedAddressLength {
		parsed = parsed[:maxParsedAddressLength]
	}
	return parsed, netmask
}

// GetObjectByName returns the object with its detail and IP entries eagerly
// loaded, or (nil, nil) when no such object exists.
func (db *DB) GetObjectByName(ctx context.Context, name string) (*models.HillstoneObject, error) {
	var (
		obj         models.HillstoneObject
		membersJSON string
		lastSynced  sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT name, members, is_ipv6, predefined, last_synced_at
		FROM objects WHERE name = ?`, name,
	).Scan(&obj.Name, &membersJSON, &obj.IsIPv6, &obj.Predefined, &lastSynced)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "select object", Err: err}
	}

	if err := json.Unmarshal([]byte(membersJSON), &obj.Members); err != nil {
		return nil, &PersistenceError{Op: "decode members", Err: err}
	}
	if lastSynced.Valid {
		ts := lastSynced.Time
		obj.LastSyncedAt = &ts
	}

	detail, err := db.getDetail(ctx, name)
	if err != nil {
		return nil, err
	}
	obj.Detail = detail

	return &obj, nil
}

// getDetail loads the detail row and its IP entries; nil when absent.
func (db *DB) getDetail(ctx context.Context, name string) (*models.HillstoneObjectData, error) {
	var (
		detail     models.HillstoneObjectData
		flag       int
		lastSynced sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT name, is_ipv6, predefined, flag, last_synced_at
		FROM object_details WHERE name = ?`, name,
	).Scan(&detail.Name, &detail.IsIPv6, &detail.Predefined, &flag, &lastSynced)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "select detail", Err: err}
	}
	if lastSynced.Valid {
		ts := lastSynced.Time
		detail.LastSyncedAt = &ts
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, detail_name, raw_ip, parsed_address, netmask, flag
		FROM ip_entries WHERE detail_name = ? ORDER BY raw_ip`, name)
	if err != nil {
		return nil, &PersistenceError{Op: "select ip entries", Err: err}
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var entry models.IPEntry
		if err := rows.Scan(&entry.ID, &entry.DetailName, &entry.RawIP,
			&entry.ParsedAddress, &entry.Netmask, &entry.Flag); err != nil {
			return nil, &PersistenceError{Op: "scan ip entry", Err: err}
		}
		detail.Entries = append(detail.Entries, entry)
		detail.IPs = append(detail.IPs, entry.RawIP)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate ip entries", Err: err}
	}

	return &detail, nil
}

// DeleteStale removes every object whose last_synced_at is strictly before
// cutoff, or null. Each object is deleted in its own transaction so one
// failed eviction cannot poison the rest; failures are logged and skipped,
// and the count of objects actually deleted is returned.
func (db *DB) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT name FROM objects
		WHERE last_synced_at < ? OR last_synced_at IS NULL`, cutoff)
	if err != nil {
		return 0, &PersistenceError{Op: "select stale objects", Err: err}
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return 0, &PersistenceError{Op: "scan stale object", Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, &PersistenceError{Op: "iterate stale objects", Err: err}
	}
	_ = rows.Close()

	deleted := 0
	for _, name := range names {
		if err := db.deleteObject(ctx, name); err != nil {
			// Partial success is the documented behavior for cleanup.
			logging.Warn().Err(err).Str("name", name).Msg("Failed to delete stale object, skipping")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		logging.Info().Int("deleted", deleted).Time("cutoff", cutoff).Msg("Evicted stale objects")
	}
	return deleted, nil
}

// deleteObject removes one object in its own transaction.
func (db *DB) deleteObject(ctx context.Context, name string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer rollbackWithLog(tx)

	if err := deleteObjectTx(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteObjectTx removes one object and its dependents in cascade order.
func deleteObjectTx(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM ip_entries WHERE detail_name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete ip entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM object_details WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete detail: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CountObjects returns the number of persisted objects.
func (db *DB) CountObjects(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&count); err != nil {
		return 0, &PersistenceError{Op: "count objects", Err: err}
	}
	return count, nil
}
