// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package sync

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a manual sync request finds the
// advisory lock already held.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// ReconciliationError wraps a failure that terminated a sync run. RunID
// points at the ledger entry recording the failure.
type ReconciliationError struct {
	RunID string
	Op    string
	Err   error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation %s failed (run %s): %v", e.Op, e.RunID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}
