// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

package hillstone

import (
	"fmt"
	"net/http"
)

// RequestError is returned for non-2xx firewall responses that are neither
// the handled auth statuses nor a single-object 404. It carries the status
// code and a truncated copy of the body for diagnostics.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("firewall request failed with status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status warrants a generic retry. 401/403 are
// deliberately excluded; those flow through the auth-retry path instead.
func (e *RequestError) Transient() bool {
	return isTransientStatus(e.StatusCode)
}

// isTransientStatus reports whether a response status indicates a transient
// condition: any 5xx, or 429 (rate limited upstream).
func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
