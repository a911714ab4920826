// Package platform assembles the storage backend and engines shared by the
// mesh binaries.
package platform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/config"
	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/infrastructure/guarded"
	"github.com/crisisnet/meshcore/internal/infrastructure/memory"
	"github.com/crisisnet/meshcore/internal/infrastructure/mysql"
	"github.com/crisisnet/meshcore/internal/infrastructure/postgres"
	"github.com/crisisnet/meshcore/internal/infrastructure/sqlite"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
	"github.com/crisisnet/meshcore/internal/seed"
	"github.com/crisisnet/meshcore/pkg/circuitbreaker"
)

// Storage is an opened backend. Pool is set only for the postgres driver.
type Storage struct {
	Store *guarded.Store
	Pool  *pgxpool.Pool

	closers []func()
}

// Close releases the backend's connections
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStore opens the configured driver behind a circuit breaker
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{}

	var inner mesh.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		inner = memory.NewStore()

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DBMaxConns,
			MinConns:    cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		s.Pool = pool
		s.closers = append(s.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		inner = postgres.NewStore(pool, cfg.EventTopic, logger)

	case config.DriverSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = store.Close() })
		inner = store

	case config.DriverMySQL:
		db, err := mysql.Connect(cfg.MySQLDSN, cfg.IsDev())
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			s.closers = append(s.closers, func() { _ = sqlDB.Close() })
		}
		if err := mysql.AutoMigrate(db); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate mysql: %w", err)
		}
		inner = mysql.NewStore(db, logger)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	store, err := guarded.New(inner, circuitbreaker.DefaultConfig("mesh-store-"+cfg.StoreDriver), logger, m)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Store = store

	logger.Info("store opened", zap.String("driver", cfg.StoreDriver))
	return s, nil
}

// Seed bootstraps an empty store with the default network when enabled
func Seed(ctx context.Context, store mesh.Store, cfg *config.Config, logger *zap.Logger) error {
	if !cfg.SeedOnEmpty {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	snap, err := mesh.Bootstrap(ctx, store, seed.Default)
	if err != nil {
		return err
	}
	logger.Info("store ready",
		zap.Int64("version", snap.Version),
		zap.Int("hospitals", len(snap.Hospitals)),
	)
	return nil
}
