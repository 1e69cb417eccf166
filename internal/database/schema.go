// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package database

import (
	"context"
	"fmt"
)

// Schema notes:
//   - objects and object_details are joined by the business key name, with a
//     uniqueness constraint on name in both tables.
//   - ip_entries carries a real foreign key to object_details and is fully
//     replaced whenever its detail row is rewritten.
//   - parsed_address is capped at 45 characters, the longest textual IPv6 form.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS objects (
		name VARCHAR NOT NULL UNIQUE,
		members JSON NOT NULL DEFAULT '[]',
		is_ipv6 BOOLEAN NOT NULL DEFAULT FALSE,
		predefined BOOLEAN NOT NULL DEFAULT FALSE,
		last_synced_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS object_details (
		name VARCHAR NOT NULL UNIQUE,
		is_ipv6 BOOLEAN NOT NULL DEFAULT FALSE,
		predefined BOOLEAN NOT NULL DEFAULT FALSE,
		flag INTEGER NOT NULL DEFAULT 0,
		last_synced_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS ip_entries (
		id VARCHAR NOT NULL PRIMARY KEY,
		detail_name VARCHAR NOT NULL REFERENCES object_details(name),
		raw_ip VARCHAR NOT NULL,
		parsed_address VARCHAR(45) NOT NULL DEFAULT '',
		netmask VARCHAR NOT NULL DEFAULT '',
		flag INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS sync_runs (
		id VARCHAR NOT NULL PRIMARY KEY,
		operation VARCHAR NOT NULL,
		status VARCHAR NOT NULL DEFAULT 'started',
		objects_processed INTEGER NOT NULL DEFAULT 0,
		objects_created INTEGER NOT NULL DEFAULT 0,
		objects_updated INTEGER NOT NULL DEFAULT 0,
		objects_deleted INTEGER NOT NULL DEFAULT 0,
		error_message VARCHAR,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_objects_last_synced ON objects(last_synced_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ip_entries_detail ON ip_entries(detail_name)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_status ON sync_runs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at)`,
}

// initSchema creates all tables and indexes. Idempotent.
func (db *DB) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
