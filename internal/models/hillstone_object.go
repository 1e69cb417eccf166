// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package models

import "time"

// HillstoneObject is the locally persisted mirror of a remote address-book
// object, keyed by name. It is the single source of truth for "what we
// believe the firewall contains".
type HillstoneObject struct {
	Name         string     `json:"name"`
	Members      []Member   `json:"members"`
	IsIPv6       bool       `json:"is_ipv6"`
	Predefined   bool       `json:"predefined"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	// Detail is the one-to-one companion row, matched by name. Nil when the
	// object has no detail data persisted.
	Detail *HillstoneObjectData `json:"detail,omitempty"`
}

// HillstoneObjectData is the detail companion of a HillstoneObject, keyed by
// the same name (a business-key join, not a numeric foreign key). Its IPEntry
// set is fully replaced on every sync of the object.
type HillstoneObjectData struct {
	Name         string     `json:"name"`
	IPs          []string   `json:"ips"`
	IsIPv6       bool       `json:"is_ipv6"`
	Predefined   bool       `json:"predefined"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	Entries      []IPEntry  `json:"entries,omitempty"`
}

// IPEntry is a single parsed IP row owned by a HillstoneObjectData record.
type IPEntry struct {
	ID         string `json:"id"`
	DetailName string `json:"detail_name"`

	// RawIP is the member string exactly as received from the firewall.
	RawIP string `json:"raw_ip"`

	// ParsedAddress is the host portion after sanitization. Capped at 45
	// characters (longest textual IPv6 form). Invalid addresses are stored
	// as-is with a warning rather than rejected.
	ParsedAddress string `json:"parsed_address"`

	Netmask string `json:"netmask"`
	Flag    int    `json:"flag"`
}

// ObjectData is the validated input for an upsert into the local store. The
// reconciliation engine builds one per remote object.
type ObjectData struct {
	Name       string   `validate:"required,max=255"`
	Members    []Member `validate:"dive"`
	IsIPv6     bool
	Predefined bool

	// Detail, when present, fully replaces the object's detail row and its
	// IP entries.
	Detail *ObjectDetailData
}

// ObjectDetailData carries the detail-row payload of an ObjectData.
type ObjectDetailData struct {
	IPs  []string
	Flag int
}
