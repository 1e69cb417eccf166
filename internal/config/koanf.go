// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/hillsync/internal/logging"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/hillsync/config.yaml",
	"/etc/hillsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping.
const envPrefix = "HILLSYNC_"

// Load builds the configuration from defaults, an optional YAML file, and
// HILLSYNC_-prefixed environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional YAML config file.
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		logging.Info().Str("path", path).Msg("Loaded config file")
	}

	// Layer 3: environment variables.
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the config file path to use, or empty when none
// exists. CONFIG_PATH takes precedence over the default search paths.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps HILLSYNC_ environment variable names to koanf config
// paths.
//
// Examples:
//   - HILLSYNC_BASE_URL       -> connection.base_url
//   - HILLSYNC_USERNAME       -> auth.username
//   - HILLSYNC_SYNC_BATCH_SIZE -> sync.batch_size
//   - HILLSYNC_DUCKDB_PATH    -> database.path
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		// Connection mappings
		"base_url":        "connection.base_url",
		"domain":          "connection.domain",
		"timeout":         "connection.timeout",
		"connect_timeout": "connection.connect_timeout",
		"read_timeout":    "connection.read_timeout",
		"verify_ssl":      "connection.verify_ssl",

		// Authentication mappings
		"username":          "auth.username",
		"password":          "auth.password",
		"token_cache_ttl":   "auth.token_cache_ttl",
		"max_auth_attempts": "auth.max_auth_attempts",
		"auth_retry_delay":  "auth.auth_retry_delay",
		"validate_session":  "auth.validate_session",

		// Sync mappings
		"sync_interval":            "sync.interval",
		"sync_batch_size":          "sync.batch_size",
		"sync_retry_attempts":      "sync.retry_attempts",
		"sync_retry_delay":         "sync.retry_delay",
		"sync_retry_multiplier":    "sync.retry_multiplier",
		"sync_max_retry_delay":     "sync.max_retry_delay",
		"cleanup_after_days":       "sync.cleanup_after_days",
		"prevent_concurrent_syncs": "sync.prevent_concurrent_syncs",
		"conflict_policy":          "sync.conflict_policy",

		// Rate limiting mappings
		"rate_limit_enabled":  "rate_limiting.enabled",
		"requests_per_minute": "rate_limiting.requests_per_minute",
		"burst_limit":         "rate_limiting.burst_limit",
		"backoff_strategy":    "rate_limiting.backoff_strategy",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Cache mappings
		"cache_store":    "cache.store",
		"cache_path":     "cache.path",
		"cache_lock_ttl": "cache.lock_ttl",

		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown keys fall through as section.key via the first underscore,
	// so future additions don't silently vanish.
	return strings.Replace(key, "_", ".", 1)
}
