// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

/*
manager.go - Firewall Session Lifecycle

This file owns the authenticated-session lifecycle against the Hillstone
management API: acquisition, caching, expiry, and invalidation.

Session Flow:
  - Authenticate() short-circuits on a cached, unexpired session
  - Otherwise it POSTs credentials to the login endpoint, extracts opaque
    session cookies from the response, optionally validates them against the
    system status endpoint, and caches the session with a TTL
  - Each failed attempt sleeps retry_delay * attempt (linear backoff) before
    the next; exhausting max_auth_attempts yields an *AuthError carrying the
    last underlying cause

Caching:
Sessions are written to two cache.Store instances: an in-process store for
fast checks and an optional shared persistent store so multiple processes on
one host reuse a single firewall session. Invalidate() clears both. Sessions
are replaced wholesale on refresh, never mutated in place.
*/

//nolint:staticcheck // File documentation, not package doc
package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/hillsync/internal/cache"
	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/logging"
	"github.com/tomtom215/hillsync/internal/models"
)

// sessionCacheKey is the key sessions are stored under in both caches.
const sessionCacheKey = "hillstone:session"

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

// Manager owns the authenticated-session lifecycle. Safe for concurrent use.
type Manager struct {
	cfg    *config.Config
	client *http.Client

	// local is the in-process cache; shared is the persistent cache visible
	// to sibling processes. shared may be nil.
	local  cache.Store
	shared cache.Store

	// mu serializes authentication so concurrent callers don't race a login.
	mu sync.Mutex
}

// NewManager creates a session manager using the connection and auth
// sections of cfg. shared may be nil when no cross-process cache is wanted.
func NewManager(cfg *config.Config, shared cache.Store) *Manager {
	return &Manager{
		cfg:    cfg,
		client: newHTTPClient(&cfg.Connection),
		local:  cache.NewMemoryStore(),
		shared: shared,
	}
}

// newHTTPClient builds the login HTTP client with connect/read timeouts from
// the connection config.
func newHTTPClient(cfg *config.ConnectionConfig) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifySSL, //nolint:gosec // deliberate config switch for self-signed firewall certs
		},
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// Authenticate ensures a valid cached session exists, performing up to
// MaxAuthAttempts logins with linear backoff when it does not. A cached,
// unexpired session returns immediately without any network call.
func (m *Manager) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cachedSession(); ok {
		logging.Debug().Msg("Reusing cached firewall session")
		return nil
	}

	maxAttempts := m.cfg.Auth.MaxAuthAttempts
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		sess, err := m.login(ctx)
		if err == nil && m.cfg.Auth.ValidateSession {
			err = m.probeSession(ctx, sess)
		}
		if err == nil {
			m.storeSession(sess)
			logging.Info().Int("attempt", attempt).Time("expires_at", sess.ExpiresAt).Msg("Firewall session acquired")
			return nil
		}

		lastErr = err
		logging.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("Authentication attempt failed")

		if attempt < maxAttempts {
			// Linear backoff: retry_delay * attempt index.
			delay := m.cfg.Auth.AuthRetryDelay * time.Duration(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return &AuthError{Attempts: maxAttempts, Err: lastErr}
}

// IsAuthenticated reports whether a cached, unexpired session exists in
// either the in-process or the shared cache.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.cachedSession()
	return ok
}

// Current returns a snapshot of the cached session for request signing.
func (m *Manager) Current() (models.Session, bool) {
	return m.cachedSession()
}

// Cookies renders the cached session credentials as HTTP cookies. Empty when
// no valid session is cached.
func (m *Manager) Cookies() []*http.Cookie {
	sess, ok := m.cachedSession()
	if !ok {
		return nil
	}
	cookies := make([]*http.Cookie, 0, len(sess.Credentials))
	for name, value := range sess.Credentials {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies
}

// Invalidate clears the session from both caches. Idempotent.
func (m *Manager) Invalidate() {
	if err := m.local.Forget(sessionCacheKey); err != nil {
		logging.Warn().Err(err).Msg("Failed to clear local session cache")
	}
	if m.shared != nil {
		if err := m.shared.Forget(sessionCacheKey); err != nil {
			logging.Warn().Err(err).Msg("Failed to clear shared session cache")
		}
	}
	logging.Debug().Msg("Firewall session invalidated")
}

// cachedSession returns the current valid session, consulting the in-process
// cache first and the shared cache second. A session found only in the shared
// cache is promoted into the local one.
func (m *Manager) cachedSession() (models.Session, bool) {
	if sess, ok := decodeSession(m.local, sessionCacheKey); ok {
		return sess, true
	}
	if m.shared == nil {
		return models.Session{}, false
	}
	sess, ok := decodeSession(m.shared, sessionCacheKey)
	if !ok {
		return models.Session{}, false
	}
	if data, err := json.Marshal(sess); err == nil {
		if err := m.local.Put(sessionCacheKey, data, time.Until(sess.ExpiresAt)); err != nil {
			logging.Warn().Err(err).Msg("Failed to promote shared session to local cache")
		}
	}
	return sess, true
}

// decodeSession reads and validates a session from one store.
func decodeSession(store cache.Store, key string) (models.Session, bool) {
	data, ok := store.Get(key)
	if !ok {
		return models.Session{}, false
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		logging.Warn().Err(err).Msg("Discarding undecodable cached session")
		return models.Session{}, false
	}
	if !sess.Valid() {
		return models.Session{}, false
	}
	return sess, true
}

// storeSession writes the session to both caches with the remaining TTL.
func (m *Manager) storeSession(sess models.Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to encode session for caching")
		return
	}
	ttl := time.Until(sess.ExpiresAt)
	if err := m.local.Put(sessionCacheKey, data, ttl); err != nil {
		logging.Warn().Err(err).Msg("Failed to cache session locally")
	}
	if m.shared != nil {
		if err := m.shared.Put(sessionCacheKey, data, ttl); err != nil {
			logging.Warn().Err(err).Msg("Failed to cache session in shared store")
		}
	}
}

// loginRequest is the login endpoint payload.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
}

// login performs one POST to the login endpoint and extracts session
// credentials from the response cookies.
func (m *Manager) login(ctx context.Context) (models.Session, error) {
	payload, err := json.Marshal(loginRequest{
		Username: m.cfg.Auth.Username,
		Password: m.cfg.Auth.Password,
		Domain:   m.cfg.Connection.Domain,
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to encode login payload: %w", err)
	}

	loginURL := strings.TrimSuffix(m.cfg.Connection.BaseURL, "/") + "/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(string(payload)))
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return models.Session{}, fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := readBodyForError(resp.Body)
		return models.Session{}, fmt.Errorf("login rejected with status %d: %s", resp.StatusCode, string(body))
	}

	credentials := make(map[string]string)
	for _, cookie := range resp.Cookies() {
		if cookie.Value != "" {
			credentials[cookie.Name] = cookie.Value
		}
	}
	if len(credentials) == 0 {
		return models.Session{}, fmt.Errorf("login response carried no session credentials")
	}

	return models.Session{
		Credentials: credentials,
		ExpiresAt:   time.Now().Add(m.cfg.Auth.TokenCacheTTL),
	}, nil
}

// probeSession validates freshly acquired credentials against the system
// status endpoint.
func (m *Manager) probeSession(ctx context.Context, sess models.Session) error {
	statusURL := strings.TrimSuffix(m.cfg.Connection.BaseURL, "/") + "/api/system/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create session probe request: %w", err)
	}
	for name, value := range sess.Credentials {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("session probe failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("session probe rejected with status %d", resp.StatusCode)
	}
	return nil
}

// readBodyForError reads at most maxErrorBodySize bytes for diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
