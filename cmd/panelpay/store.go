package main

import (
	"context"
	"fmt"

	gfirestore "cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mcpanel/panelpay/internal/config"
	"github.com/mcpanel/panelpay/pkg/billing"
	"github.com/mcpanel/panelpay/pkg/panelpay"
	"github.com/mcpanel/panelpay/storage/firestore"
	"github.com/mcpanel/panelpay/storage/memory"
	"github.com/mcpanel/panelpay/storage/postgres"
	"github.com/mcpanel/panelpay/storage/redis"
	"github.com/mcpanel/panelpay/storage/tiered"
)

// storeBackend is the opened cache store plus everything that must be closed
// with it
type storeBackend struct {
	store   panelpay.Store
	catalog billing.Catalog
	pings   []func(context.Context) error
	closers []func()
}

func (b *storeBackend) ping(ctx context.Context) error {
	for _, ping := range b.pings {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases backends in reverse opening order
func (b *storeBackend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

//nolint:gocyclo // One branch per backend
func openStore(ctx context.Context, cfg *config.Config, logger panelpay.Logger) (*storeBackend, error) {
	b := &storeBackend{}

	var pg *postgres.Storage
	if cfg.PostgresDSN != "" &&
		(cfg.StoreBackend == config.StorePostgres || cfg.StoreBackend == config.StoreTiered || cfg.UseCatalog) {
		pgConfig := postgres.DefaultConfig()
		pgConfig.ConnectionString = cfg.PostgresDSN
		pgConfig.Logger = logger
		s, err := postgres.New(ctx, pgConfig)
		if err != nil {
			return nil, err
		}
		pg = s
		b.closers = append(b.closers, s.Close)
		b.pings = append(b.pings, s.Ping)
		if cfg.UseCatalog {
			b.catalog = s
		}
	}

	openRedis := func() (*redis.Storage, error) {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.pings = append(b.pings, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		return redis.New(client, redis.DefaultConfig())
	}

	openFirestore := func() (*firestore.Storage, error) {
		client, err := gfirestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		return firestore.New(client, firestore.Config{})
	}

	fail := func(err error) (*storeBackend, error) {
		b.Close()
		return nil, err
	}

	switch cfg.StoreBackend {
	case config.StoreMemory:
		b.store = memory.New()
	case config.StoreRedis:
		s, err := openRedis()
		if err != nil {
			return fail(err)
		}
		b.store = s
	case config.StorePostgres:
		b.store = pg
	case config.StoreFirestore:
		s, err := openFirestore()
		if err != nil {
			return fail(err)
		}
		b.store = s
	case config.StoreTiered:
		hot, err := openRedis()
		if err != nil {
			return fail(err)
		}
		var cold panelpay.Store = pg
		if pg == nil {
			fs, err := openFirestore()
			if err != nil {
				return fail(err)
			}
			cold = fs
		}
		s, err := tiered.New(tiered.Config{
			Hot:  hot,
			Cold: cold,
			ErrorHandler: func(err error) {
				logger.Warn("tiered store drift", panelpay.F("error", err))
			},
		})
		if err != nil {
			return fail(err)
		}
		b.store = s
	default:
		return fail(fmt.Errorf("unknown store backend %q", cfg.StoreBackend))
	}

	return b, nil
}
