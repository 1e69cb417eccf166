// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

// Package main is the entry point for the Hillsync server.
//
// Hillsync mirrors a Hillstone firewall's address book into a local DuckDB
// store and keeps it reconciled on a schedule. The server initializes
// components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml,
//     HILLSYNC_ environment variables)
//  2. Logging: zerolog, json or console format
//  3. Cache: memory or BadgerDB store backing sessions and advisory locks
//  4. Database: DuckDB local object store and sync-run ledger
//  5. Firewall client: session manager, rate limiter, circuit breaker
//  6. Sync manager: reconciliation engine plus the periodic scheduler
//  7. HTTP server: sync triggers, status, object lookups, health, metrics
//
// Shutdown on SIGINT/SIGTERM stops the scheduler, drains in-flight HTTP
// requests, and closes the database and cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tomtom215/hillsync/internal/api"
	"github.com/tomtom215/hillsync/internal/cache"
	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/database"
	"github.com/tomtom215/hillsync/internal/hillstone"
	"github.com/tomtom215/hillsync/internal/logging"
	"github.com/tomtom215/hillsync/internal/metrics"
	"github.com/tomtom215/hillsync/internal/session"
	syncpkg "github.com/tomtom215/hillsync/internal/sync"
)

// shutdownTimeout bounds graceful HTTP drain on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})
	logging.Info().Str("base_url", cfg.Connection.BaseURL).Msg("Hillsync starting")

	store, err := openCacheStore(cfg)
	if err != nil {
		return err
	}
	defer closeWithLog(store.Close, "cache store")

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeWithLog(db.Close, "database")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	instruments := metrics.New(registry)

	sessions := session.NewManager(cfg, store)
	var client hillstone.Interface = hillstone.NewCircuitBreakerClient(hillstone.NewClient(cfg, sessions))

	engine := syncpkg.NewEngine(cfg, client, db, instruments, nil)
	manager := syncpkg.NewManager(cfg, engine, store, instruments)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.Start(ctx)
	defer manager.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewServer(cfg, manager, db, client, registry).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}

	logging.Info().Msg("Hillsync stopped")
	return nil
}

// openCacheStore builds the configured session/lock store.
func openCacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Store {
	case config.CacheStoreBadger:
		store, err := cache.NewBadgerStore(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache store: %w", err)
		}
		return store, nil
	default:
		return cache.NewMemoryStore(), nil
	}
}

// closeWithLog runs a close function and logs any error.
func closeWithLog(closeFn func() error, name string) {
	if err := closeFn(); err != nil {
		logging.Warn().Err(err).Str("resource", name).Msg("Failed to close resource")
	}
}
