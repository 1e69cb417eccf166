// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package hillstone

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/hillsync/internal/logging"
	"github.com/tomtom215/hillsync/internal/models"
)

// CircuitBreakerClient wraps an Interface so a consistently failing firewall
// stops absorbing retry budgets. The breaker trips at a 60% failure ratio
// over at least 10 requests and admits 3 probes while half-open. Auth flows
// bypass the breaker; only the read endpoints are guarded.
type CircuitBreakerClient struct {
	inner       Interface
	listBreaker *gobreaker.CircuitBreaker[[]models.AddressBookObject]
	getBreaker  *gobreaker.CircuitBreaker[Lookup]
	pingBreaker *gobreaker.CircuitBreaker[struct{}]
}

var _ Interface = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps inner with per-endpoint circuit breakers.
func NewCircuitBreakerClient(inner Interface) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		inner:       inner,
		listBreaker: gobreaker.NewCircuitBreaker[[]models.AddressBookObject](breakerSettings("hillstone-list")),
		getBreaker:  gobreaker.NewCircuitBreaker[Lookup](breakerSettings("hillstone-get")),
		pingBreaker: gobreaker.NewCircuitBreaker[struct{}](breakerSettings("hillstone-ping")),
	}
}

// breakerSettings builds the shared breaker configuration.
func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}
}

// Authenticate bypasses the breaker; session handling has its own policy.
func (c *CircuitBreakerClient) Authenticate(ctx context.Context) error {
	return c.inner.Authenticate(ctx)
}

// IsAuthenticated delegates directly.
func (c *CircuitBreakerClient) IsAuthenticated() bool {
	return c.inner.IsAuthenticated()
}

// Ping probes connectivity through its breaker.
func (c *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := c.pingBreaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.inner.Ping(ctx)
	})
	return mapBreakerError(err)
}

// ListObjects guards the bulk listing endpoint.
func (c *CircuitBreakerClient) ListObjects(ctx context.Context) ([]models.AddressBookObject, error) {
	objects, err := c.listBreaker.Execute(func() ([]models.AddressBookObject, error) {
		return c.inner.ListObjects(ctx)
	})
	return objects, mapBreakerError(err)
}

// GetObject guards the single-object endpoint.
func (c *CircuitBreakerClient) GetObject(ctx context.Context, name string) (Lookup, error) {
	lookup, err := c.getBreaker.Execute(func() (Lookup, error) {
		return c.inner.GetObject(ctx, name)
	})
	return lookup, mapBreakerError(err)
}

// mapBreakerError converts breaker rejections into the client's own error
// vocabulary so callers only handle *RequestError and *AuthError.
func mapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &RequestError{
			StatusCode: http.StatusServiceUnavailable,
			Body:       "firewall circuit breaker open",
		}
	}
	return err
}
