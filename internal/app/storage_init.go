package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

const storageInitTimeout = 30 * time.Second

// runtimeDependencies — хранилище и его производные, общие для HTTP API и воркеров.
type runtimeDependencies struct {
	uow             domain.UnitOfWork
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		return initMemoryDependencies(cfg, logger), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies(cfg Config, logger *log.Entry) *runtimeDependencies {
	store := memory.NewStore()
	if cfg.SeedDemoCatalog {
		vendors, products := demoCatalog()
		for _, v := range vendors {
			store.PutVendor(v)
		}
		for _, p := range products {
			store.PutProduct(p)
		}
		logger.WithField("products", len(products)).Info("demo catalog loaded into memory storage")
	}
	logger.Warn("using in-memory storage: data is lost on restart")

	return &runtimeDependencies{
		uow:             store,
		outboxRepo:      store.Outbox(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		storageChecker:  healthcheck.NewPingChecker("storage", store.Ping, false),
		closeFn:         func() error { return nil },
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres storage requires %s", envPostgresDSN)
	}
	isolation, err := postgres.ParseIsolation(cfg.PostgresIsolation)
	if err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, storageInitTimeout)
	defer cancel()

	store, err := postgres.Open(initCtx, cfg.PostgresDSN,
		postgres.WithLogger(logger.WithField("component", "postgres-store")),
		postgres.WithIsolation(isolation),
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(initCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
	}
	if cfg.SeedDemoCatalog {
		if err := seedPostgresCatalog(initCtx, store); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("demo catalog upserted into postgres")
	}

	return &runtimeDependencies{
		uow:             store,
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  healthcheck.NewPingChecker("storage", store.Ping, false),
		closeFn:         store.Close,
	}, nil
}

func seedPostgresCatalog(ctx context.Context, store *postgres.Store) error {
	vendors, products := demoCatalog()
	for _, v := range vendors {
		if err := store.UpsertVendor(ctx, v); err != nil {
			return fmt.Errorf("seed vendor %s: %w", v.ID, err)
		}
	}
	for _, p := range products {
		if err := store.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return nil
}

// demoCatalog — фиксированный каталог для локального запуска и нагрузочного теста.
// Товары без TrackStock не ограничены остатком, поэтому loadtest не упирается в склад.
func demoCatalog() ([]domain.Vendor, []domain.Product) {
	vendors := []domain.Vendor{
		{ID: "vendor-kl-furniture", Name: "KL Furniture Works", Active: true},
		{ID: "vendor-penang-lighting", Name: "Penang Lighting Co", Active: true},
		{ID: "vendor-johor-textiles", Name: "Johor Textiles", Active: true},
		{ID: "vendor-retired", Name: "Retired Supplier", Active: false},
	}
	products := []domain.Product{
		{ID: "prod-office-chair", VendorID: "vendor-kl-furniture", Name: "Office chair", PriceMinor: 45000, Active: true, TrackStock: true, Stock: 500},
		{ID: "prod-standing-desk", VendorID: "vendor-kl-furniture", Name: "Standing desk", PriceMinor: 129900, Active: true, TrackStock: true, Stock: 200},
		{ID: "prod-bookshelf", VendorID: "vendor-kl-furniture", Name: "Bookshelf", PriceMinor: 32050, Active: true},
		{ID: "prod-desk-lamp", VendorID: "vendor-penang-lighting", Name: "Desk lamp", PriceMinor: 8990, Active: true},
		{ID: "prod-floor-lamp", VendorID: "vendor-penang-lighting", Name: "Floor lamp", PriceMinor: 21500, Active: true},
		{ID: "prod-curtains", VendorID: "vendor-johor-textiles", Name: "Blackout curtains", PriceMinor: 15900, Active: true},
		{ID: "prod-cushion", VendorID: "vendor-johor-textiles", Name: "Cushion", PriceMinor: 2500, Active: true},
		{ID: "prod-discontinued", VendorID: "vendor-johor-textiles", Name: "Discontinued rug", PriceMinor: 9900, Active: false},
		{ID: "prod-legacy-stool", VendorID: "vendor-retired", Name: "Legacy stool", PriceMinor: 7000, Active: true},
	}
	return vendors, products
}
