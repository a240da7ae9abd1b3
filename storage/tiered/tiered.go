// Package tiered provides a Hot/Cold tiered panelpay.Store that puts a fast
// ephemeral store (Hot) in front of a durable one (Cold).
//   - Read-Through: Get and Exists try Hot, then Cold, and repopulate Hot.
//   - Write-Through: Set and Delete reach Cold first, then Hot.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache storage (e.g., Redis, Memory)
	Hot panelpay.Store

	// Cold is the L2 persistence storage (e.g., Postgres, Firestore) as the source of truth
	Cold panelpay.Store

	// FillTTL bounds how long a value copied from Cold lives in Hot. Cold does
	// not report remaining TTLs, so a short bound keeps expiry drift small.
	// Default: 1 minute
	FillTTL time.Duration

	// ErrorHandler is called when a best-effort Hot operation fails.
	// Essential for monitoring consistency drift.
	ErrorHandler func(error)
}

// Storage implements panelpay.Store over two backends
type Storage struct {
	hot  panelpay.Store
	cold panelpay.Store
	conf Config
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}
	if config.FillTTL <= 0 {
		config.FillTTL = time.Minute
	}

	return &Storage{
		hot:  config.Hot,
		cold: config.Cold,
		conf: config,
	}, nil
}

// --- Strategy: Read-Through (Hot → Cold → Populate Hot) ---

// Get implements panelpay.Store with read-through strategy.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	// 1. Try Hot
	value, err := s.hot.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if errors.Is(err, panelpay.ErrInvalidKey) {
		return nil, err
	}
	if !errors.Is(err, panelpay.ErrNotFound) {
		s.reportError(fmt.Errorf("tiered storage: hot get failed: %w", err))
	}

	// 2. Try Cold (Source of Truth)
	value, err = s.cold.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// 3. Populate Hot (Read-Repair)
	if err := s.hot.Set(ctx, key, value, s.conf.FillTTL); err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot fill failed: %w", err))
	}

	return value, nil
}

// Exists implements panelpay.Store with read-through strategy. It does not
// repopulate Hot.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.hot.Exists(ctx, key)
	if err == nil && ok {
		return true, nil
	}
	if errors.Is(err, panelpay.ErrInvalidKey) {
		return false, err
	}
	if err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot exists failed: %w", err))
	}
	return s.cold.Exists(ctx, key)
}

// --- Strategy: Write-Through (Cold → Hot) ---
// Critical data must be durable first.

// Set implements panelpay.Store with write-through strategy.
func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// 1. Write Cold (Durability)
	if err := s.cold.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	// 2. Write Hot (Availability)
	// A failed write must not leave the previous value readable from Hot
	if err := s.hot.Set(ctx, key, value, ttl); err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot set failed: %w", err))
		if delErr := s.hot.Delete(ctx, key); delErr != nil {
			return fmt.Errorf("tiered storage: hot copy of %s is stale: %w", key, delErr)
		}
	}
	return nil
}

// Delete implements panelpay.Store with write-through strategy. A Hot failure
// is returned because Hot would keep serving the deleted value.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.cold.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.hot.Delete(ctx, key); err != nil {
		return fmt.Errorf("tiered storage: hot delete failed: %w", err)
	}
	return nil
}

func (s *Storage) reportError(err error) {
	if s.conf.ErrorHandler != nil {
		s.conf.ErrorHandler(err)
	}
}

var _ panelpay.Store = (*Storage)(nil)
