// Package memory provides an in-memory implementation of the panelpay.Store interface.
// This implementation is intended for single-process deployments, development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mcpanel/panelpay/pkg/panelpay"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Storage implements panelpay.Store using an in-memory map
type Storage struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return NewWithClock(time.Now)
}

// NewWithClock creates an in-memory storage adapter that reads time from now.
func NewWithClock(now func() time.Time) *Storage {
	if now == nil {
		now = time.Now
	}
	return &Storage{
		entries: make(map[string]*entry),
		now:     now,
	}
}

// Get implements panelpay.Store. Expired keys are purged on read.
func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	if err := panelpay.ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, panelpay.ErrNotFound
	}

	if e.expired(s.now()) {
		s.purge(key, e)
		return nil, panelpay.ErrNotFound
	}

	// Return a copy to prevent external mutations
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set implements panelpay.Store
func (s *Storage) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := panelpay.ValidateKey(key); err != nil {
		return err
	}

	e := &entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Delete implements panelpay.Store
func (s *Storage) Delete(_ context.Context, key string) error {
	if err := panelpay.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Exists implements panelpay.Store
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == panelpay.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Len returns the number of stored keys, including expired ones not yet purged.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// purge removes key only if it still holds the expired entry that was read,
// so a concurrent Set is never lost.
func (s *Storage) purge(key string, stale *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[key]; ok && current == stale {
		delete(s.entries, key)
	}
}
