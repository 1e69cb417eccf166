// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package models

import "time"

// Session holds the opaque credentials extracted from a firewall login
// response, together with their expiry. Sessions are immutable: a refresh
// replaces the whole value, it never mutates credentials in place.
type Session struct {
	// Credentials are opaque key-value pairs (cookie name -> value) sent
	// back on every authenticated request.
	Credentials map[string]string `json:"credentials"`

	// ExpiresAt is the absolute expiry. A session is valid only while this
	// is strictly in the future.
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session can be used right now.
func (s Session) Valid() bool {
	return s.ValidAt(time.Now())
}

// ValidAt reports whether the session is usable at the given instant:
// credentials non-empty AND expiry strictly after now.
func (s Session) ValidAt(now time.Time) bool {
	return len(s.Credentials) > 0 && s.ExpiresAt.After(now)
}
