// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

// Package config holds the application configuration, loaded via Koanf v2
// with layered sources (highest priority wins):
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (HILLSYNC_ prefix, see envTransformFunc)
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the Hillsync service.
type Config struct {
	Connection ConnectionConfig `koanf:"connection"`
	Auth       AuthConfig       `koanf:"auth"`
	Sync       SyncConfig       `koanf:"sync"`
	RateLimit  RateLimitConfig  `koanf:"rate_limiting"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ConnectionConfig holds firewall connection settings.
type ConnectionConfig struct {
	// BaseURL is the firewall management API root, e.g. https://fw.example.com
	BaseURL string `koanf:"base_url"`

	// Domain is the vendor authentication domain sent with the login request.
	Domain string `koanf:"domain"`

	// Timeout bounds the whole request; ConnectTimeout and ReadTimeout bound
	// dial and response-header phases respectively.
	Timeout        time.Duration `koanf:"timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`

	VerifySSL bool `koanf:"verify_ssl"`
}

// AuthConfig holds firewall credential and session-cache settings.
type AuthConfig struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// TokenCacheTTL is how long an acquired session is cached before a fresh
	// login is forced.
	TokenCacheTTL time.Duration `koanf:"token_cache_ttl"`

	// MaxAuthAttempts bounds the login retry loop; attempt i sleeps
	// AuthRetryDelay*i before the next try (linear backoff).
	MaxAuthAttempts int           `koanf:"max_auth_attempts"`
	AuthRetryDelay  time.Duration `koanf:"auth_retry_delay"`

	// ValidateSession probes the system status endpoint after login to
	// confirm the fresh session actually works.
	ValidateSession bool `koanf:"validate_session"`
}

// Conflict resolution policies for existing local records.
const (
	ConflictPolicyLatestWins   = "latest_wins"
	ConflictPolicySkipExisting = "skip_existing"
)

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	// Interval between scheduled full syncs; 0 disables the scheduler loop.
	Interval time.Duration `koanf:"interval"`

	// BatchSize is how many objects are upserted between ledger progress
	// writes.
	BatchSize int `koanf:"batch_size"`

	// Retry policy for transient remote errors (network, 5xx, 429).
	RetryAttempts   int           `koanf:"retry_attempts"`
	RetryDelay      time.Duration `koanf:"retry_delay"`
	RetryMultiplier float64       `koanf:"retry_multiplier"`
	MaxRetryDelay   time.Duration `koanf:"max_retry_delay"`

	// CleanupAfterDays is the stale-object retention window; objects not
	// refreshed within it are evicted after a full sync. 0 disables cleanup.
	CleanupAfterDays int `koanf:"cleanup_after_days"`

	// RunRetentionDays is how long terminal ledger rows are kept; the
	// scheduler prunes older ones after each run. 0 disables pruning.
	RunRetentionDays int `koanf:"run_retention_days"`

	// PreventConcurrentSyncs makes the scheduler consult the ledger before
	// starting a run. The advisory cache lock remains the real
	// mutual-exclusion primitive; this is a soft pre-check only.
	PreventConcurrentSyncs bool `koanf:"prevent_concurrent_syncs"`

	// ConflictPolicy is latest_wins or skip_existing.
	ConflictPolicy string `koanf:"conflict_policy"`
}

// RateLimitConfig holds token-bucket settings for outbound firewall requests.
type RateLimitConfig struct {
	Enabled           bool   `koanf:"enabled"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
	BurstLimit        int    `koanf:"burst_limit"`
	BackoffStrategy   string `koanf:"backoff_strategy"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// Cache store kinds.
const (
	CacheStoreMemory = "memory"
	CacheStoreBadger = "badger"
)

// CacheConfig holds the shared cache backing sessions and advisory locks.
type CacheConfig struct {
	// Store selects the backing: memory (single process) or badger
	// (persistent, shared across processes on one host).
	Store string `koanf:"store"`
	Path  string `koanf:"path"`

	// LockTTL bounds advisory sync locks; set it well beyond the expected
	// run duration so a crashed holder cannot wedge the scheduler forever.
	LockTTL time.Duration `koanf:"lock_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			BaseURL:        "",
			Domain:         "public",
			Timeout:        30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    30 * time.Second,
			VerifySSL:      true,
		},
		Auth: AuthConfig{
			Username:        "",
			Password:        "",
			TokenCacheTTL:   1200 * time.Second,
			MaxAuthAttempts: 3,
			AuthRetryDelay:  2 * time.Second,
			ValidateSession: true,
		},
		Sync: SyncConfig{
			Interval:               1 * time.Hour,
			BatchSize:              100,
			RetryAttempts:          3,
			RetryDelay:             2 * time.Second,
			RetryMultiplier:        2.0,
			MaxRetryDelay:          60 * time.Second,
			CleanupAfterDays:       30,
			RunRetentionDays:       90,
			PreventConcurrentSyncs: true,
			ConflictPolicy:         ConflictPolicyLatestWins,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			BurstLimit:        10,
			BackoffStrategy:   "exponential",
		},
		Database: DatabaseConfig{
			Path:      "/data/hillsync.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Cache: CacheConfig{
			Store:   CacheStoreMemory,
			Path:    "/data/hillsync-cache",
			LockTTL: 30 * time.Minute,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8477,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	if c.Connection.BaseURL == "" {
		return fmt.Errorf("connection.base_url is required")
	}
	if _, err := url.ParseRequestURI(c.Connection.BaseURL); err != nil {
		return fmt.Errorf("connection.base_url is not a valid URL: %w", err)
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return fmt.Errorf("auth.username and auth.password are required")
	}
	if c.Auth.MaxAuthAttempts < 1 {
		return fmt.Errorf("auth.max_auth_attempts must be at least 1, got %d", c.Auth.MaxAuthAttempts)
	}
	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > 1000 {
		return fmt.Errorf("sync.batch_size must be in [1, 1000], got %d", c.Sync.BatchSize)
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("sync.retry_attempts must be at least 1, got %d", c.Sync.RetryAttempts)
	}
	if c.Sync.RetryMultiplier < 1 {
		return fmt.Errorf("sync.retry_multiplier must be >= 1, got %g", c.Sync.RetryMultiplier)
	}
	if c.Sync.CleanupAfterDays < 0 {
		return fmt.Errorf("sync.cleanup_after_days must not be negative, got %d", c.Sync.CleanupAfterDays)
	}
	if c.Sync.RunRetentionDays < 0 {
		return fmt.Errorf("sync.run_retention_days must not be negative, got %d", c.Sync.RunRetentionDays)
	}
	switch c.Sync.ConflictPolicy {
	case ConflictPolicyLatestWins, ConflictPolicySkipExisting:
	default:
		return fmt.Errorf("sync.conflict_policy must be %q or %q, got %q",
			ConflictPolicyLatestWins, ConflictPolicySkipExisting, c.Sync.ConflictPolicy)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute < 1 {
			return fmt.Errorf("rate_limiting.requests_per_minute must be at least 1, got %d", c.RateLimit.RequestsPerMinute)
		}
		if c.RateLimit.BurstLimit < 1 {
			return fmt.Errorf("rate_limiting.burst_limit must be at least 1, got %d", c.RateLimit.BurstLimit)
		}
	}
	switch c.Cache.Store {
	case CacheStoreMemory, CacheStoreBadger:
	default:
		return fmt.Errorf("cache.store must be %q or %q, got %q", CacheStoreMemory, CacheStoreBadger, c.Cache.Store)
	}
	if c.Cache.Store == CacheStoreBadger && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when cache.store is badger")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	return nil
}
