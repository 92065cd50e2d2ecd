// Package factory selects and opens the activity store named by configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/useractivity/internal/config"
	"example.com/useractivity/internal/domain"
	"example.com/useractivity/internal/persistence/memory"
	"example.com/useractivity/internal/persistence/postgres"
	"example.com/useractivity/internal/persistence/sqlite"
)

// Storage bundles the opened repository with the resources behind it.
type Storage struct {
	Repository domain.ActivityRepository
	// Pool is set only for the postgres driver; the outbox dispatcher and DLQ manager need it.
	Pool   *pgxpool.Pool
	Driver string

	closer func()
}

// Close releases the underlying connections.
func (s *Storage) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// NewStorage selects the correct storage adapter based on cfg.StoreDriver.
func NewStorage(ctx context.Context, cfg config.Config) (*Storage, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &Storage{
			Repository: postgres.NewStore(pool),
			Pool:       pool,
			Driver:     cfg.StoreDriver,
			closer:     pool.Close,
		}, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Repository: store,
			Driver:     cfg.StoreDriver,
			closer:     func() { store.Close() },
		}, nil
	case config.DriverMemory:
		return &Storage{Repository: memory.NewStore(), Driver: cfg.StoreDriver}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER: %s", cfg.StoreDriver)
	}
}
