// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

// Package api exposes the HTTP surface: sync triggers, status and statistics
// queries, local object lookups, connection tests, health, and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/database"
	"github.com/tomtom215/hillsync/internal/hillstone"
	syncpkg "github.com/tomtom215/hillsync/internal/sync"
)

// Server bundles the dependencies behind the HTTP handlers.
type Server struct {
	cfg      *config.Config
	manager  *syncpkg.Manager
	db       *database.DB
	client   hillstone.Interface
	registry *prometheus.Registry
}

// NewServer wires the HTTP layer.
func NewServer(cfg *config.Config, manager *syncpkg.Manager, db *database.DB, client hillstone.Interface, registry *prometheus.Registry) *Server {
	return &Server{
		cfg:      cfg,
		manager:  manager,
		db:       db,
		client:   client,
		registry: registry,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.cfg.Server.Timeout))

	r.Get("/healthz", s.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(60, time.Minute))

		r.Post("/sync", s.TriggerSyncAll)
		r.Post("/sync/objects/{name}", s.TriggerSyncObject)
		r.Get("/sync/status", s.SyncStatus)
		r.Get("/sync/stats", s.SyncStats)
		r.Get("/objects/{name}", s.GetObject)
		r.Get("/test-connection", s.TestConnection)
	})

	return r
}
