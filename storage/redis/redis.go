// Package redis provides a Redis implementation of the panelpay.Store interface.
// Key expiry is delegated to Redis, which never returns expired keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// Storage implements panelpay.Store using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "panelpay:")
	KeyPrefix string

	// OperationTimeout bounds each Redis round trip (0 = rely on ctx only)
	OperationTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:        "panelpay:",
		OperationTimeout: 2 * time.Second,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "panelpay:"
	}

	return &Storage{
		client: client,
		config: config,
	}, nil
}

// Get implements panelpay.Store
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := panelpay.ValidateKey(key); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, panelpay.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	return val, nil
}

// Set implements panelpay.Store
func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := panelpay.ValidateKey(key); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Delete implements panelpay.Store
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := panelpay.ValidateKey(key); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Exists implements panelpay.Store
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := panelpay.ValidateKey(key); err != nil {
		return false, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	return n > 0, nil
}

func (s *Storage) key(key string) string {
	return s.config.KeyPrefix + key
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}
