// Package postgres provides a PostgreSQL implementation of the panelpay.Store
// interface and a billing.Catalog over the storefront's items table.
// Expiry is evaluated lazily on read; a background worker purges expired rows.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// Schema creates the key-value table used by Storage
const Schema = `
CREATE TABLE IF NOT EXISTS panelpay_kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS panelpay_kv_expires_at_idx
	ON panelpay_kv (expires_at) WHERE expires_at IS NOT NULL;
`

// Storage implements panelpay.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
	now    func() time.Time

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// EnsureSchema creates the key-value table on startup
	EnsureSchema bool

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often expired rows are purged

	// ItemsTable is the storefront table read by the Catalog (default: "items")
	ItemsTable string

	// Logger receives cleanup failures. If nil, they are discarded.
	Logger panelpay.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		EnsureSchema:    true,
		CleanupEnabled:  true,
		CleanupInterval: 1 * time.Hour,
		ItemsTable:      "items",
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewWithPool(pool, config)
	if config.EnsureSchema {
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	// Start cleanup goroutine if enabled
	if config.CleanupEnabled {
		cleanupCtx, cancel := context.WithCancel(context.Background())
		s.stopCleanup = cancel
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// NewWithPool wraps an existing pool. No schema is created and no cleanup
// worker is started.
func NewWithPool(pool *pgxpool.Pool, config Config) *Storage {
	if config.ItemsTable == "" {
		config.ItemsTable = "items"
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.Logger == nil {
		config.Logger = &panelpay.NoopLogger{}
	}
	return &Storage{
		pool:   pool,
		config: config,
		now:    time.Now,
	}
}

// EnsureSchema creates the key-value table if it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup() // Stop the background cleanup routine
	}
	if s.pool != nil {
		s.pool.Close() // Close PG connection pool
	}
}

// Get implements panelpay.Store. An expired row reads as absent and is
// purged.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := panelpay.ValidateKey(key); err != nil {
		return nil, err
	}

	var (
		value     []byte
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM panelpay_kv WHERE key = $1`, key).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, panelpay.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}

	if now := s.now().UTC(); expiresAt != nil && !expiresAt.After(now) {
		s.purge(ctx, key, now)
		return nil, panelpay.ErrNotFound
	}
	return value, nil
}

// purge deletes key if it is still expired at now. A concurrent Set moves
// expires_at forward and keeps its row.
func (s *Storage) purge(ctx context.Context, key string, now time.Time) {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM panelpay_kv WHERE key = $1 AND expires_at IS NOT NULL AND expires_at <= $2`,
		key, now); err != nil {
		s.config.Logger.Warn("failed to purge expired key", panelpay.F("key", key), panelpay.F("error", err))
	}
}

// Set implements panelpay.Store
func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := panelpay.ValidateKey(key); err != nil {
		return err
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := s.now().UTC().Add(ttl)
		expiresAt = &t
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO panelpay_kv (key, value, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Delete implements panelpay.Store
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := panelpay.ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM panelpay_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%w: delete %s: %v", panelpay.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Exists implements panelpay.Store
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, panelpay.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LookupItem implements billing.Catalog over the storefront's items table
func (s *Storage) LookupItem(ctx context.Context, id string) (*billing.CatalogItem, error) {
	var (
		item      billing.CatalogItem
		salePrice *float64
	)
	query := fmt.Sprintf( //nolint:gosec // table name comes from configuration, not user input
		`SELECT id::text, name, price::float8, sale_price::float8 FROM %s WHERE id::text = $1`,
		pgx.Identifier{s.config.ItemsTable}.Sanitize())
	err := s.pool.QueryRow(ctx, query, id).Scan(&item.ID, &item.Name, &item.Price, &salePrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, billing.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up item %s: %w", id, err)
	}
	item.SalePrice = salePrice
	return &item, nil
}

// startCleanup runs periodic cleanup of expired rows
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Cleanup(ctx); err != nil {
				s.config.Logger.Warn("postgres cleanup failed", panelpay.F("error", err))
			}
		}
	}
}

// Cleanup deletes expired rows and returns how many were removed
func (s *Storage) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM panelpay_kv WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var (
	_ panelpay.Store  = (*Storage)(nil)
	_ billing.Catalog = (*Storage)(nil)
)
