package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-merch/internal/config"
	"github.com/noah-isme/backend-merch/internal/notify"
	"github.com/noah-isme/backend-merch/internal/order"
	"github.com/noah-isme/backend-merch/internal/ratelimit"
	"github.com/noah-isme/backend-merch/internal/repo"
	"github.com/noah-isme/backend-merch/internal/resilience"
)

// Dependencies enumerates the long-lived clients shared by the entrypoints.
type Dependencies struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Store       *repo.Handle
	Redis       *redis.Client
	Validator   *validator.Validate
	TaskClient  *asynq.Client
	KafkaWriter *kafka.Writer
}

// NewRedis connects to Redis with tracing and optional metrics instrumentation.
func NewRedis(ctx context.Context, url string, instrumentMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if instrumentMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "merch:limiter"})
}

// NewOrderRateLimit builds the rate limit middleware for order creation.
func NewOrderRateLimit(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) (ratelimit.Handler, error) {
	window, max, err := ratelimit.ParseRate(cfg.OrderRateLimit)
	if err != nil {
		return ratelimit.Handler{}, err
	}
	var backend ratelimit.Backend
	switch cfg.RateLimitBackend {
	case config.RateLimitSliding:
		backend = ratelimit.SlidingWindow{Client: rdb, Prefix: "merch:ratelimit:"}
	default:
		store, err := NewLimiterStore(rdb)
		if err != nil {
			return ratelimit.Handler{}, fmt.Errorf("limiter store: %w", err)
		}
		backend = ratelimit.StoreLimiter{Store: store}
	}
	return ratelimit.Handler{
		Limiter: backend,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("orders:"),
			Window: window,
			Max:    max,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate_limit_backend_error")
		},
	}, nil
}

// TaskRedisOpt parses the Redis URL into asynq connection options.
func TaskRedisOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	return opt, nil
}

// NewOrderAllocator builds the order code allocator from configuration.
func NewOrderAllocator(cfg *config.Config) order.Allocator {
	return order.Allocator{Length: cfg.OrderCodeLength, MaxAttempts: cfg.OrderCodeMaxAttempts}
}

// DeliverySinks returns the sinks that talk to external systems directly:
// the spreadsheet webhook and the Kafka topic, when configured.
func (d *Dependencies) DeliverySinks() []notify.Sink {
	var sinks []notify.Sink
	cfg := d.Config
	if cfg.SheetWebhookURL != "" {
		logger := d.Logger.With().Str("component", "sheet-webhook").Logger()
		sinks = append(sinks, &notify.WebhookSink{
			URL:    cfg.SheetWebhookURL,
			Secret: cfg.SheetWebhookSecret,
			HTTP: &resilience.HTTPClient{
				Client:      notify.NewWebhookHTTPClient(cfg.SheetWebhookTimeout),
				Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("sheet-webhook").WithLogger(logger),
				BaseBackoff: 200 * time.Millisecond,
				MaxAttempts: 3,
				Jitter:      0.2,
				Timeout:     cfg.SheetWebhookTimeout,
				Target:      "sheet-webhook",
				Logger:      &logger,
			},
			Replay:    d.replayProtector(),
			ReplayTTL: 24 * time.Hour,
		})
	}
	if d.KafkaWriter == nil && len(cfg.KafkaBrokers) > 0 {
		d.KafkaWriter = notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
	}
	if d.KafkaWriter != nil {
		sinks = append(sinks, &notify.KafkaSink{Writer: d.KafkaWriter})
	}
	return sinks
}

// RequestSinks returns the sinks the API process notifies after an order is
// created, according to NOTIFY_MODE.
func (d *Dependencies) RequestSinks() ([]notify.Sink, error) {
	switch d.Config.NotifyMode {
	case config.NotifyOff:
		return nil, nil
	case config.NotifyQueue:
		if d.TaskClient == nil {
			opt, err := TaskRedisOpt(d.Config.RedisURL)
			if err != nil {
				return nil, err
			}
			d.TaskClient = asynq.NewClient(opt)
		}
		return []notify.Sink{&notify.QueueSink{Client: d.TaskClient, MaxRetry: 8, Timeout: time.Minute, Retention: 24 * time.Hour}}, nil
	default:
		return d.DeliverySinks(), nil
	}
}

func (d *Dependencies) replayProtector() notify.ReplayProtector {
	if d.Redis == nil {
		return nil
	}
	return notify.RedisReplayProtector{Client: d.Redis}
}

// Close releases every client that was opened.
func (d *Dependencies) Close(ctx context.Context) error {
	var joined error
	if d.TaskClient != nil {
		joined = errors.Join(joined, d.TaskClient.Close())
	}
	if d.KafkaWriter != nil {
		joined = errors.Join(joined, d.KafkaWriter.Close())
	}
	if d.Redis != nil {
		joined = errors.Join(joined, d.Redis.Close())
	}
	if d.Store != nil {
		joined = errors.Join(joined, d.Store.Close(ctx))
	}
	return joined
}
