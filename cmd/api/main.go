package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-merch/internal/app"
	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/common"
	"github.com/noah-isme/backend-merch/internal/config"
	"github.com/noah-isme/backend-merch/internal/health"
	"github.com/noah-isme/backend-merch/internal/notify"
	"github.com/noah-isme/backend-merch/internal/obs"
	"github.com/noah-isme/backend-merch/internal/order"
	"github.com/noah-isme/backend-merch/internal/repo"
	"github.com/noah-isme/backend-merch/internal/resilience"
	"github.com/noah-isme/backend-merch/internal/security"
)

const serviceName = "merch-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)

	tracing := cfg.Obs.Tracing
	if tracing {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   serviceName,
			Environment:   cfg.AppEnv,
			Exporter:      cfg.Obs.TracingExporter,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			SamplingRatio: cfg.Obs.SamplingRatio,
		})
		if err != nil {
			logger.Error().Err(err).Msg("tracing disabled")
			tracing = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("flush tracer")
				}
			}()
		}
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelBoot()

	store, err := repo.Open(bootCtx, cfg, serviceName)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	redisClient, err := app.NewRedis(bootCtx, cfg.RedisURL, cfg.Obs.Prometheus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}

	deps := &app.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Redis:     redisClient,
		Validator: order.NewValidator(),
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Close(ctx); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store:  store.Catalog,
		Cache:  catalog.NewComboCache(redisClient, cfg.ComboCacheTTL),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("catalog service")
	}

	sinks, err := deps.RequestSinks()
	if err != nil {
		logger.Fatal().Err(err).Str("mode", cfg.NotifyMode).Msg("notification sinks")
	}
	orderService, err := order.NewService(order.ServiceConfig{
		Catalog:       catalogService,
		Combos:        catalogService,
		Store:         store.Orders,
		Allocator:     app.NewOrderAllocator(cfg),
		Notifier:      &notify.Dispatcher{Sinks: sinks, Logger: logger.With().Str("component", "notify").Logger()},
		Validator:     deps.Validator,
		Logger:        logger,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("order service")
	}
	orderLimit, err := app.NewOrderRateLimit(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("order rate limit")
	}

	r := newRouter(cfg, logger, tracing)
	r.Get("/health/live", health.Handler{}.Live)
	r.Get("/health/ready", health.Handler{
		Checker:      app.Readiness{Store: store, Redis: redisClient},
		StoreTimeout: cfg.Health.StoreTimeout,
		RedisTimeout: cfg.Health.RedisTimeout,
	}.Ready)

	orderHandler := order.NewHandler(order.HandlerConfig{Service: orderService, Logger: logger})
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})
	r.Route("/api", func(api chi.Router) {
		api.Route("/orders", orderHandler.Routes(
			orderLimit.Middleware,
			security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware,
			common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}.Middleware,
		))
		api.Get("/combos", catalogHandler.Combos)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.StoreDriver).
			Str("notify_mode", cfg.NotifyMode).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// background notifications still hold their own timeout
	orderService.Wait()
}

// newRouter mounts the cross-cutting middleware plus /metrics and pprof.
func newRouter(cfg *config.Config, logger zerolog.Logger, tracing bool) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	if tracing {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.Prometheus {
		buckets := obs.ParseBucketsCSV(cfg.Obs.LatencyBucketsMS)
		r.Use(obs.MetricsMiddleware(obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)))
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     cfg.Security.Headers,
		EnableHSTS: cfg.Security.HSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}.Middleware)

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if cfg.Obs.Prometheus {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.Pprof {
		r.Mount("/debug", basicAuth(debugRoutes(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}
	return r
}
