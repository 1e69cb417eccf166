// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

// Package models defines the data structures shared across Hillsync components:
// the remote address-book representation returned by the firewall API, the
// locally persisted object rows, the ephemeral authentication session, and the
// sync-run ledger entries.
package models

import (
	"time"

	"github.com/goccy/go-json"
)

// MemberType classifies a raw address-book member string.
//
// Detection priority (first match wins): exact IP beats CIDR, CIDR beats
// range, range beats hostname, and anything unmatched falls back to a
// named-object reference.
type MemberType string

// Member type classifications in detection priority order.
const (
	MemberTypeIPv4      MemberType = "ipv4"
	MemberTypeIPv6      MemberType = "ipv6"
	MemberTypeIPv4CIDR  MemberType = "ipv4_cidr"
	MemberTypeIPv6CIDR  MemberType = "ipv6_cidr"
	MemberTypeIPv4Range MemberType = "ipv4_range"
	MemberTypeHostname  MemberType = "hostname"
	MemberTypeReference MemberType = "reference"
)

// Member is a single entry of an address-book object: an IP, CIDR, range,
// hostname, or a reference to another named object. The detected Type is
// informational for downstream consumers and does not affect storage format.
type Member struct {
	Value string     `json:"value"`
	Type  MemberType `json:"type"`
}

// AddressBookObject is the normalized remote representation of a firewall
// address-book object. Raw retains the source payload for diagnostics.
type AddressBookObject struct {
	Name         string          `json:"name"`
	Members      []Member        `json:"members"`
	IsIPv6       bool            `json:"is_ipv6"`
	Predefined   bool            `json:"predefined"`
	Description  *string         `json:"description,omitempty"`
	LastModified *time.Time      `json:"last_modified,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// MemberValues returns the raw member strings in order.
func (o *AddressBookObject) MemberValues() []string {
	values := make([]string, 0, len(o.Members))
	for _, m := range o.Members {
		values = append(values, m.Value)
	}
	return values
}
