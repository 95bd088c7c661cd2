package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/config"
	"github.com/noah-isme/backend-merch/internal/obs"
	"github.com/noah-isme/backend-merch/internal/order"
)

// Seeder writes catalog records. Both catalog adapters implement it.
type Seeder interface {
	UpsertProduct(ctx context.Context, p catalog.Product) error
	UpsertCombo(ctx context.Context, d catalog.ComboDefinition) error
}

// Handle is a lifecycle-scoped connection to the configured store. It owns
// the underlying client and must be closed by whoever opened it.
type Handle struct {
	Driver  string
	Catalog catalog.Store
	Orders  order.Store
	Seeder  Seeder

	pool  *pgxpool.Pool
	mongo *mongo.Client
}

// Open connects to the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, appName string) (*Handle, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		return openPostgres(ctx, cfg.DatabaseURL, appName)
	case config.StoreMongo:
		return openMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, appName)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func openPostgres(ctx context.Context, dsn, appName string) (*Handle, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	cat := PGCatalog{DB: pool}
	return &Handle{
		Driver:  config.StorePostgres,
		Catalog: cat,
		Orders:  PGOrders{DB: pool},
		Seeder:  cat,
		pool:    pool,
	}, nil
}

func openMongo(ctx context.Context, uri, database, appName string) (*Handle, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName(appName).
		SetMonitor(obs.NewMongoMonitor())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	orders := MongoOrders{DB: db}
	if err := orders.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ensure order indexes: %w", err)
	}
	cat := MongoCatalog{DB: db}
	return &Handle{
		Driver:  config.StoreMongo,
		Catalog: cat,
		Orders:  orders,
		Seeder:  cat,
		mongo:   client,
	}, nil
}

// Pool exposes the Postgres pool, or nil for other drivers.
func (h *Handle) Pool() *pgxpool.Pool {
	if h == nil {
		return nil
	}
	return h.pool
}

// Ping checks store connectivity.
func (h *Handle) Ping(ctx context.Context) error {
	if h == nil {
		return errors.New("store not open")
	}
	switch {
	case h.pool != nil:
		return h.pool.Ping(ctx)
	case h.mongo != nil:
		return h.mongo.Ping(ctx, readpref.Primary())
	default:
		return errors.New("store not open")
	}
}

// Close releases the underlying connections.
func (h *Handle) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if h.pool != nil {
		h.pool.Close()
		h.pool = nil
	}
	if h.mongo != nil {
		err := h.mongo.Disconnect(ctx)
		h.mongo = nil
		return err
	}
	return nil
}
