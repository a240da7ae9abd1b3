package panelpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetValue reads key from s and decodes it as JSON into a T.
// Returns nil and no error when the key is absent or expired.
func GetValue[T any](ctx context.Context, s Store, key string) (*T, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &v, nil
}

// SetValue encodes v as JSON and stores it under key with the given ttl.
func SetValue[T any](ctx context.Context, s Store, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
