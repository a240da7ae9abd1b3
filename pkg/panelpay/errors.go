package panelpay

import "errors"

var (
	// ErrNotFound is returned when a key is absent or expired
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for empty keys
	ErrInvalidKey = errors.New("invalid key")

	// ErrStoreUnavailable is returned when the backing store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")
)
