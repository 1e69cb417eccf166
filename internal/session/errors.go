// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package session

import "fmt"

// AuthError is returned when every login attempt was exhausted. It wraps the
// last underlying cause so callers can still inspect it with errors.Is/As.
type AuthError struct {
	// Attempts is how many logins were tried before giving up.
	Attempts int

	// Err is the failure from the final attempt.
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
