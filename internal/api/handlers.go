// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

/*
handlers.go - HTTP API Handlers

Thin adapters over the sync manager, the local store, and the firewall
client. All reconciliation logic stays in internal/sync; handlers translate
outcomes into the uniform response envelope:

  - 202 for accepted sync runs (the run record is the response body)
  - 409 when a sync is already in progress
  - 404 for unknown local objects or an empty ledger
  - 502 when the firewall rejects or times out a request
*/

//nolint:staticcheck // File documentation, not package doc
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/hillsync/internal/logging"
	syncpkg "github.com/tomtom215/hillsync/internal/sync"
)

// defaultStatsWindowDays is used when the stats query omits ?days.
const defaultStatsWindowDays = 7

// syncTimeout bounds API-triggered sync runs independently of the server's
// per-request write timeout.
const syncTimeout = 30 * time.Minute

// TriggerSyncAll starts a full reconciliation run.
func (s *Server) TriggerSyncAll(w http.ResponseWriter, r *http.Request) {
	// Detach from the request context: the run should survive the caller
	// disconnecting once accepted.
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	run, err := s.manager.SyncAll(ctx)
	if err != nil {
		if errors.Is(err, syncpkg.ErrSyncInProgress) {
			respondError(w, http.StatusConflict, "sync_in_progress", err.Error())
			return
		}
		// The run record, when present, still reflects the failed ledger state.
		if run != nil {
			respondJSON(w, http.StatusBadGateway, run)
			return
		}
		respondError(w, http.StatusInternalServerError, "sync_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, run)
}

// TriggerSyncObject starts a single-object reconciliation run.
func (s *Server) TriggerSyncObject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "object name is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	run, err := s.manager.SyncObject(ctx, name)
	if err != nil {
		if errors.Is(err, syncpkg.ErrSyncInProgress) {
			respondError(w, http.StatusConflict, "sync_in_progress", err.Error())
			return
		}
		if run != nil {
			respondJSON(w, http.StatusBadGateway, run)
			return
		}
		respondError(w, http.StatusInternalServerError, "sync_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, run)
}

// SyncStatus reports the latest ledger entry plus whether a run is open.
func (s *Server) SyncStatus(w http.ResponseWriter, r *http.Request) {
	engine := s.manager.Engine()

	run, err := engine.GetLastSyncStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "status_failed", err.Error())
		return
	}
	running, err := engine.IsSyncRunning(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "status_failed", err.Error())
		return
	}
	if run == nil {
		respondError(w, http.StatusNotFound, "no_sync_runs", "no sync has been recorded yet")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"running":  running,
		"last_run": run,
	})
}

// SyncStats aggregates ledger statistics over a trailing window.
func (s *Server) SyncStats(w http.ResponseWriter, r *http.Request) {
	days := defaultStatsWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			respondError(w, http.StatusBadRequest, "invalid_days", "days must be an integer in [1, 365]")
			return
		}
		days = parsed
	}

	stats, err := s.manager.Engine().GetSyncStatistics(r.Context(), days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetObject returns one locally persisted object with detail and IP entries.
func (s *Server) GetObject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "object name is required")
		return
	}

	obj, err := s.db.GetObjectByName(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if obj == nil {
		respondError(w, http.StatusNotFound, "object_not_found", "no such local object")
		return
	}
	respondJSON(w, http.StatusOK, obj)
}

// TestConnection probes firewall reachability and database health.
func (s *Server) TestConnection(w http.ResponseWriter, r *http.Request) {
	result := map[string]string{
		"firewall": "ok",
		"database": "ok",
	}
	status := http.StatusOK

	if err := s.client.Ping(r.Context()); err != nil {
		result["firewall"] = err.Error()
		status = http.StatusBadGateway
		logging.Warn().Err(err).Msg("Firewall connection test failed")
	}
	if err := s.db.Ping(r.Context()); err != nil {
		result["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, result)
}

// Healthz is the liveness endpoint: database reachable means healthy. The
// firewall being down degrades sync but not the service itself.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
