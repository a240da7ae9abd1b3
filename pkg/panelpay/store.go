// Package panelpay holds the shared building blocks of the store payment
// reconciliation flow: the cache/idempotency Store contract, key namespacing,
// the cached data model and the logging contract.
package panelpay

import (
	"context"
	"time"
)

// Store is a namespaced key-value store with per-key expiry.
// It is the only shared mutable resource of the payment flow and every
// component treats it as a derived, reconstructible view of provider state.
//
// Implementations must evaluate expiry lazily on read: an expired key reads
// as absent (ErrNotFound) and may be purged at that point. All writes are
// whole-value overwrites.
type Store interface {
	// Get returns the raw value stored under key.
	// Returns ErrNotFound if the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	// A ttl of zero or less means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)
}
