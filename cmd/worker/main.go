package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-merch/internal/app"
	"github.com/noah-isme/backend-merch/internal/config"
	"github.com/noah-isme/backend-merch/internal/notify"
	"github.com/noah-isme/backend-merch/internal/obs"
	"github.com/noah-isme/backend-merch/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	redisClient, err := app.NewRedis(bootCtx, cfg.RedisURL, false, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}

	deps := &app.Dependencies{Config: cfg, Logger: logger, Redis: redisClient}
	defer func() {
		if err := deps.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	sinks := deps.DeliverySinks()
	if len(sinks) == 0 {
		logger.Warn().Msg("no delivery sinks configured; queued notifications will be acknowledged without delivery")
	}
	dispatcher := &notify.Dispatcher{Sinks: sinks, Logger: logger}

	redisOpt, err := app.TaskRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("task redis options")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{notify.QueueName: 1},
		ShutdownTimeout: 15 * time.Second,
		Logger:          app.AsynqLogger{Logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).
				Str("task", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("notification task failed")
		}),
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(notify.NewServeMux(&notify.TaskHandler{Dispatcher: dispatcher})); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
