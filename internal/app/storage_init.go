package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/eshop-basket/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/eshop-basket/internal/health"
	"github.com/vladislavdragonenkov/eshop-basket/internal/storage/memory"
	"github.com/vladislavdragonenkov/eshop-basket/internal/storage/postgres"
)

// runtimeDependencies — репозитории выбранного хранилища.
type runtimeDependencies struct {
	baskets         domain.Repository[domain.Basket]
	catalog         domain.Repository[domain.CatalogItem]
	orders          domain.Repository[domain.Order]
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	transactor      domain.Transactor
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

// initRuntimeDependencies создаёт репозитории для cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		return initMemoryDependencies(ctx, cfg, logger)
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	catalog := memory.NewCatalogRepository()
	if cfg.SeedCatalog {
		if err := memory.SeedCatalog(ctx, catalog, memory.DemoCatalog()); err != nil {
			return nil, err
		}
	}

	logger.WithField("catalog_items", catalog.Len()).Info("using in-memory storage")
	return &runtimeDependencies{
		baskets:         memory.NewBasketRepository(),
		catalog:         catalog,
		orders:          memory.NewOrderRepository(),
		outboxRepo:      memory.NewOutboxRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		transactor:      memory.Transactor{},
	}, nil
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	logger.Info("using postgres storage")
	return &runtimeDependencies{
		baskets:         postgres.NewBasketRepository(store),
		catalog:         postgres.NewCatalogRepository(store),
		orders:          postgres.NewOrderRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		transactor:      store,
		storageChecker:  healthcheck.NewPingChecker("postgres", 0, store.Ping),
		closeFn:         store.Close,
	}, nil
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
		return
	}
	logger.Info("storage closed")
}
