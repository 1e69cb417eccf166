// Hillsync - Hillstone Firewall Address Book Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hillsync

// Package cache provides the TTL key-value store backing the shared session
// cache and the advisory sync locks.
//
// Store is a small capability interface ({Get, Put, Forget} plus the
// compare-free PutIfAbsent used for advisory locking) so callers receive the
// store by injection rather than reaching for a package singleton. Two
// implementations exist: MemoryStore for single-process deployments and
// tests, and BadgerStore for persistence shared across processes on one
// host.
package cache

import (
	"sync"
	"time"
)

// Store is the TTL key-value capability used for session caching and
// advisory locks.
//
// An expired entry behaves exactly like a missing one. All implementations
// are safe for concurrent use.
type Store interface {
	// Get returns the value for key, or false when absent or expired.
	Get(key string) ([]byte, bool)

	// Put stores value under key for ttl. A non-positive ttl stores the
	// value without expiry.
	Put(key string, value []byte, ttl time.Duration) error

	// PutIfAbsent stores value only when key is absent or expired, and
	// reports whether the write happened. This is the advisory-lock
	// acquisition primitive.
	PutIfAbsent(key string, value []byte, ttl time.Duration) (bool, error)

	// Forget removes key. Removing a missing key is not an error.
	Forget(key string) error

	// Close releases backing resources.
	Close() error
}

// memoryEntry is one stored value with its expiry.
type memoryEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// expired reports whether the entry is past its expiry at now.
func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !e.expires.After(now)
}

// MemoryStore is an in-process Store with lazy expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns the value for key, or false when absent or expired.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expired(time.Now()) {
		delete(s.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Put stores value under key for ttl.
func (s *MemoryStore) Put(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expires: expiry(ttl)}
	return nil
}

// PutIfAbsent stores value only when key is absent or expired.
func (s *MemoryStore) PutIfAbsent(key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && !entry.expired(time.Now()) {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expires: expiry(ttl)}
	return true, nil
}

// Forget removes key; idempotent.
func (s *MemoryStore) Forget(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Close releases nothing for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// expiry converts a ttl into an absolute expiry; non-positive means none.
func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
