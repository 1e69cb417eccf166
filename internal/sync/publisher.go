// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package sync

import (
	"context"

	"github.com/tomtom215/hillsync/internal/models"
)

// EventPublisher receives run lifecycle notifications. Broker-backed
// implementations live outside this module; the default is a no-op.
type EventPublisher interface {
	// SyncCompleted fires after a run reaches the completed state.
	SyncCompleted(ctx context.Context, run *models.SyncRun)

	// SyncFailed fires after a run reaches the failed state.
	SyncFailed(ctx context.Context, run *models.SyncRun, err error)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) SyncCompleted(context.Context, *models.SyncRun)        {}
func (NopPublisher) SyncFailed(context.Context, *models.SyncRun, error)    {}
