package main

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/backend-merch/internal/app"
	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/config"
	"github.com/noah-isme/backend-merch/internal/lock"
	"github.com/noah-isme/backend-merch/internal/obs"
	"github.com/noah-isme/backend-merch/internal/repo"
)

var products = []catalog.Product{
	{ID: "sab-tee", Name: "SAB T-Shirt", Price: 150000, Available: true},
	{ID: "sab-cap", Name: "SAB Snapback Cap", Price: 100000, Available: true},
}

var combos = []catalog.ComboDefinition{
	{
		ID:   "sab-tee-cap",
		Name: "Tee + Cap",
		Components: []catalog.Component{
			{ProductID: "sab-tee", Quantity: 1},
			{ProductID: "sab-cap", Quantity: 1},
		},
		ComboPrice: 220000,
		Active:     true,
		Position:   1,
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "seeder").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := repo.Open(ctx, cfg, "merch-seeder")
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("close store")
		}
	}()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() { _ = redisClient.Close() }()

	locker := lock.Locker{R: redisClient, Prefix: "merch:lock:"}
	err = locker.Do(ctx, "seed", time.Minute, func(ctx context.Context) error {
		if pool := store.Pool(); pool != nil {
			if err := repo.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			logger.Info().Msg("schema ready")
		}
		for _, p := range products {
			if err := store.Seeder.UpsertProduct(ctx, p); err != nil {
				return fmt.Errorf("upsert product %s: %w", p.ID, err)
			}
		}
		for _, d := range combos {
			if err := store.Seeder.UpsertCombo(ctx, d); err != nil {
				return fmt.Errorf("upsert combo %s: %w", d.ID, err)
			}
		}
		return catalog.NewComboCache(redisClient, cfg.ComboCacheTTL).Invalidate(ctx)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed catalog")
	}
	logger.Info().Int("products", len(products)).Int("combos", len(combos)).Msg("seeding completed")
}
