// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

// Package hillstone implements the authenticated read client for the
// Hillstone firewall address-book API.
//
// Every request passes a token-bucket rate limiter before sending and a
// bounded exponential-backoff retry loop for transient failures (network
// errors, 5xx, 429). Authorization failures (401/403) are handled separately:
// the cached session is invalidated, one re-authentication is attempted, and
// the request is retried exactly once. The two retry paths never overlap.
//
// Single-object lookups return a tagged Lookup value so a remote 404 is an
// ordinary NotFound outcome rather than an error.
package hillstone

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/logging"
	"github.com/tomtom215/hillsync/internal/models"
	"github.com/tomtom215/hillsync/internal/session"
)

// maxBodySize bounds how much of any response body is read.
const maxBodySize = 16 * 1024 * 1024 // 16MB

// Interface is the remote-client capability consumed by the reconciliation
// engine and the API layer.
type Interface interface {
	// Authenticate ensures a valid firewall session exists.
	Authenticate(ctx context.Context) error

	// IsAuthenticated reports whether a valid session is cached.
	IsAuthenticated() bool

	// Ping probes the system status endpoint for connectivity checks.
	Ping(ctx context.Context) error

	// ListObjects returns every address-book object the firewall reports.
	ListObjects(ctx context.Context) ([]models.AddressBookObject, error)

	// GetObject looks up a single object by name. A remote 404 yields a
	// NotFound Lookup, not an error.
	GetObject(ctx context.Context, name string) (Lookup, error)
}

// Lookup is the tagged result of a single-object fetch: Found carries the
// object, NotFound carries nothing. Errors travel separately.
type Lookup struct {
	found bool
	obj   models.AddressBookObject
}

// FoundLookup wraps a successfully fetched object.
func FoundLookup(obj models.AddressBookObject) Lookup {
	return Lookup{found: true, obj: obj}
}

// NotFoundLookup marks an absent remote object.
func NotFoundLookup() Lookup {
	return Lookup{}
}

// Found reports whether the lookup located an object.
func (l Lookup) Found() bool {
	return l.found
}

// Object returns the located object; ok is false for a NotFound lookup.
func (l Lookup) Object() (models.AddressBookObject, bool) {
	return l.obj, l.found
}

// Client is the concrete firewall client. Safe for concurrent use.
type Client struct {
	cfg      *config.Config
	sessions *session.Manager
	client   *http.Client
	limiter  *rate.Limiter
}

// compile-time interface check
var _ Interface = (*Client)(nil)

// NewClient creates a firewall client sharing the given session manager.
func NewClient(cfg *config.Config, sessions *session.Manager) *Client {
	return &Client{
		cfg:      cfg,
		sessions: sessions,
		client:   newHTTPClient(&cfg.Connection),
		limiter:  newLimiter(&cfg.RateLimit),
	}
}

// newHTTPClient builds the request client with connect/read timeouts from the
// connection config.
func newHTTPClient(cfg *config.ConnectionConfig) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   4,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifySSL, //nolint:gosec // deliberate config switch for self-signed firewall certs
		},
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// newLimiter builds the outbound token bucket. A disabled config yields an
// unlimited limiter so call sites stay uniform.
func newLimiter(cfg *config.RateLimitConfig) *rate.Limiter {
	if !cfg.Enabled {
		return rate.NewLimiter(rate.Inf, 1)
	}
	interval := time.Minute / time.Duration(cfg.RequestsPerMinute)
	return rate.NewLimiter(rate.Every(interval), cfg.BurstLimit)
}

// Authenticate delegates to the session manager.
func (c *Client) Authenticate(ctx context.Context) error {
	return c.sessions.Authenticate(ctx)
}

// IsAuthenticated delegates to the session manager.
func (c *Client) IsAuthenticated() bool {
	return c.sessions.IsAuthenticated()
}

// Ping checks firewall reachability via the system status endpoint. It uses
// the same auth, rate-limit, and retry discipline as the read endpoints.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, "/api/system/status")
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status > 299 {
		return &RequestError{StatusCode: resp.status, Body: truncateBody(resp.body)}
	}
	return nil
}

// ListObjects fetches and normalizes the full address-book listing.
func (c *Client) ListObjects(ctx context.Context) ([]models.AddressBookObject, error) {
	resp, err := c.get(ctx, "/api/address-book/objects")
	if err != nil {
		return nil, err
	}
	if resp.status < 200 || resp.status > 299 {
		return nil, &RequestError{StatusCode: resp.status, Body: truncateBody(resp.body)}
	}

	items, err := decodeEnvelope(resp.body)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize listing response: %w", err)
	}

	objects := make([]models.AddressBookObject, 0, len(items))
	for _, item := range items {
		obj, err := normalizeObject(item)
		if err != nil {
			// One malformed entry should not poison the whole listing.
			logging.Warn().Err(err).Msg("Skipping malformed address-book entry")
			continue
		}
		objects = append(objects, obj)
	}

	logging.Debug().Int("count", len(objects)).Msg("Fetched address-book listing")
	return objects, nil
}

// GetObject fetches a single object by name. 404 maps to NotFound.
func (c *Client) GetObject(ctx context.Context, name string) (Lookup, error) {
	resp, err := c.get(ctx, "/api/address-book/objects/"+url.PathEscape(name))
	if err != nil {
		return Lookup{}, err
	}
	if resp.status == http.StatusNotFound {
		return NotFoundLookup(), nil
	}
	if resp.status < 200 || resp.status > 299 {
		return Lookup{}, &RequestError{StatusCode: resp.status, Body: truncateBody(resp.body)}
	}

	obj, err := decodeSingleObject(resp.body)
	if err != nil {
		return Lookup{}, fmt.Errorf("failed to normalize object response: %w", err)
	}
	return FoundLookup(obj), nil
}

// decodeSingleObject accepts either a bare object document or a one-element
// listing envelope.
func decodeSingleObject(body []byte) (models.AddressBookObject, error) {
	if obj, err := normalizeObject(body); err == nil {
		return obj, nil
	}
	items, err := decodeEnvelope(body)
	if err != nil {
		return models.AddressBookObject{}, err
	}
	if len(items) == 0 {
		return models.AddressBookObject{}, fmt.Errorf("object response envelope is empty")
	}
	return normalizeObject(items[0])
}

// apiResponse carries a completed HTTP exchange back through the retry loop.
type apiResponse struct {
	status int
	body   []byte
}

// get performs an authenticated GET with the full request discipline:
// transparent authentication, rate limiting, transient-error retry, and the
// single re-auth retry for 401/403.
func (c *Client) get(ctx context.Context, path string) (*apiResponse, error) {
	if err := c.sessions.Authenticate(ctx); err != nil {
		return nil, err
	}

	resp, err := c.sendWithRetry(ctx, path)
	if err != nil {
		return nil, err
	}

	if resp.status != http.StatusUnauthorized && resp.status != http.StatusForbidden {
		return resp, nil
	}

	// Auth-retry path: invalidate, re-authenticate once, retry exactly once.
	// 401/403 never enter the generic transient retry loop.
	logging.Warn().Int("status", resp.status).Str("path", path).Msg("Session rejected, re-authenticating")
	c.sessions.Invalidate()
	if err := c.sessions.Authenticate(ctx); err != nil {
		return nil, err
	}

	resp, err = c.sendWithRetry(ctx, path)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
		return nil, &session.AuthError{
			Attempts: 1,
			Err:      &RequestError{StatusCode: resp.status, Body: truncateBody(resp.body)},
		}
	}
	return resp, nil
}

// sendWithRetry runs one request through the rate limiter and the bounded
// exponential-backoff policy. Network errors and transient statuses retry;
// every other response (including 401/403/404) returns to the caller as data.
func (c *Client) sendWithRetry(ctx context.Context, path string) (*apiResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.Sync.RetryDelay
	policy.Multiplier = c.cfg.Sync.RetryMultiplier
	policy.MaxInterval = c.cfg.Sync.MaxRetryDelay
	policy.MaxElapsedTime = 0
	policy.RandomizationFactor = 0.1

	attempts := uint64(c.cfg.Sync.RetryAttempts)
	if attempts > 0 {
		attempts--
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, attempts), ctx)

	attempt := 0
	return backoff.RetryWithData(func() (*apiResponse, error) {
		attempt++
		resp, err := c.sendOnce(ctx, path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("Firewall request failed, will retry")
			return nil, err
		}
		if isTransientStatus(resp.status) {
			logging.Warn().Int("status", resp.status).Str("path", path).Int("attempt", attempt).Msg("Transient firewall response, will retry")
			return nil, &RequestError{StatusCode: resp.status, Body: truncateBody(resp.body)}
		}
		return resp, nil
	}, b)
}

// sendOnce waits for a rate-limiter token, issues the request with session
// cookies, and reads the full body.
func (c *Client) sendOnce(ctx context.Context, path string) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("rate limiter wait aborted: %w", err))
	}

	requestURL := strings.TrimSuffix(c.cfg.Connection.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for _, cookie := range c.sessions.Cookies() {
		req.AddCookie(cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &apiResponse{status: resp.StatusCode, body: body}, nil
}

// truncateBody caps diagnostic bodies carried inside errors.
func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "... (truncated)"
	}
	return string(body)
}
