// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package hillstone

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/hillsync/internal/config"
	"github.com/tomtom215/hillsync/internal/session"
)

// testConfig builds a client config with fast retries for test speed.
func testConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Connection.BaseURL = baseURL
	cfg.Connection.Timeout = 5 * time.Second
	cfg.Connection.ConnectTimeout = 2 * time.Second
	cfg.Connection.ReadTimeout = 2 * time.Second
	cfg.Auth.Username = "admin"
	cfg.Auth.Password = "secret"
	cfg.Auth.TokenCacheTTL = 20 * time.Minute
	cfg.Auth.MaxAuthAttempts = 2
	cfg.Auth.AuthRetryDelay = time.Millisecond
	cfg.Sync.RetryAttempts = 3
	cfg.Sync.RetryDelay = time.Millisecond
	cfg.Sync.RetryMultiplier = 2.0
	cfg.Sync.MaxRetryDelay = 10 * time.Millisecond
	cfg.RateLimit.Enabled = false
	return cfg
}

// fixtureServer is a fake firewall with a settable listing handler.
type fixtureServer struct {
	*httptest.Server
	logins  atomic.Int32
	listing http.HandlerFunc
}

func newFixtureServer(t *testing.T) *fixtureServer {
	t.Helper()
	fs := &fixtureServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fs.logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "session-1"})
	})
	mux.HandleFunc("/api/address-book/objects", func(w http.ResponseWriter, r *http.Request) {
		fs.listing(w, r)
	})
	mux.HandleFunc("/api/address-book/objects/", func(w http.ResponseWriter, r *http.Request) {
		fs.listing(w, r)
	})
	mux.HandleFunc("/api/system/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func newTestClient(cfg *config.Config) *Client {
	return NewClient(cfg, session.NewManager(cfg, nil))
}

func TestListObjects(t *testing.T) {
	fs := newFixtureServer(t)
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("token"); err != nil || cookie.Value != "session-1" {
			t.Error("listing request is missing the session cookie")
		}
		w.Write([]byte(`{"data":[{"name":"web","member":["10.0.0.1"]},{"name":"db","member":["10.1.0.0/24"]}]}`))
	}

	client := newTestClient(testConfig(fs.URL))
	objects, err := client.ListObjects(context.Background())
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}

	if len(objects) != 2 {
		t.Fatalf("got %d objects, want 2", len(objects))
	}
	if objects[0].Name != "web" || objects[1].Name != "db" {
		t.Errorf("object names = %q, %q", objects[0].Name, objects[1].Name)
	}
}

func TestListObjectsSingleReauthOnUnauthorized(t *testing.T) {
	fs := newFixtureServer(t)
	var requests atomic.Int32
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		// First data request is rejected; the retry after re-auth succeeds.
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"name":"web"}]`))
	}

	client := newTestClient(testConfig(fs.URL))
	objects, err := client.ListObjects(context.Background())
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}

	if len(objects) != 1 {
		t.Fatalf("got %d objects, want 1", len(objects))
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("data requests = %d, want exactly 2 (one retry)", got)
	}
	if got := fs.logins.Load(); got != 2 {
		t.Errorf("logins = %d, want 2 (initial + re-auth)", got)
	}
}

func TestListObjectsPersistentUnauthorized(t *testing.T) {
	fs := newFixtureServer(t)
	var requests atomic.Int32
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}

	client := newTestClient(testConfig(fs.URL))
	_, err := client.ListObjects(context.Background())

	var authErr *session.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *session.AuthError", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("data requests = %d, want 2 (no third attempt)", got)
	}
}

func TestListObjectsTransientRetry(t *testing.T) {
	fs := newFixtureServer(t)
	var requests atomic.Int32
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results":[{"name":"web"}]}`))
	}

	client := newTestClient(testConfig(fs.URL))
	objects, err := client.ListObjects(context.Background())
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 1 {
		t.Fatalf("got %d objects, want 1", len(objects))
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("data requests = %d, want 3", got)
	}
}

func TestListObjectsRetryExhaustion(t *testing.T) {
	fs := newFixtureServer(t)
	var requests atomic.Int32
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}

	client := newTestClient(testConfig(fs.URL))
	_, err := client.ListObjects(context.Background())

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", reqErr.StatusCode)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("data requests = %d, want RetryAttempts (3)", got)
	}
}

func TestListObjectsNonTransientStatusNotRetried(t *testing.T) {
	fs := newFixtureServer(t)
	var requests atomic.Int32
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}

	client := newTestClient(testConfig(fs.URL))
	_, err := client.ListObjects(context.Background())

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("data requests = %d, want 1 (400 is not transient)", got)
	}
}

func TestGetObjectNotFound(t *testing.T) {
	fs := newFixtureServer(t)
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}

	client := newTestClient(testConfig(fs.URL))
	lookup, err := client.GetObject(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if lookup.Found() {
		t.Error("lookup should be NotFound for a remote 404")
	}
}

func TestGetObjectFound(t *testing.T) {
	fs := newFixtureServer(t)
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"web","member":["10.0.0.1/32"]}`))
	}

	client := newTestClient(testConfig(fs.URL))
	lookup, err := client.GetObject(context.Background(), "web")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}

	obj, found := lookup.Object()
	if !found {
		t.Fatal("lookup should be Found")
	}
	if obj.Name != "web" {
		t.Errorf("Name = %q, want web", obj.Name)
	}
}

func TestRateLimiterDelaysBurstOverflow(t *testing.T) {
	fs := newFixtureServer(t)
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}

	cfg := testConfig(fs.URL)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMinute = 600 // 100ms refill
	cfg.RateLimit.BurstLimit = 2

	client := newTestClient(cfg)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.ListObjects(ctx); err != nil {
			t.Fatalf("ListObjects %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// The third request exceeds the burst and must wait for a token rather
	// than fail.
	if elapsed < 50*time.Millisecond {
		t.Errorf("elapsed = %v, expected the over-burst request to be delayed", elapsed)
	}
}

func TestPing(t *testing.T) {
	fs := newFixtureServer(t)
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}

	client := newTestClient(testConfig(fs.URL))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	fs := newFixtureServer(t)
	fs.listing = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest) // non-transient, so one request per call
	}

	wrapped := NewCircuitBreakerClient(newTestClient(testConfig(fs.URL)))
	ctx := context.Background()

	// Drive enough failures through the breaker to trip it.
	for i := 0; i < 10; i++ {
		if _, err := wrapped.ListObjects(ctx); err == nil {
			t.Fatalf("ListObjects %d should fail", i)
		}
	}

	_, err := wrapped.ListObjects(ctx)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError once open", err)
	}
	if reqErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503 from the open breaker", reqErr.StatusCode)
	}
}
