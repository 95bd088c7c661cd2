package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/config"
	"github.com/noah-isme/backend-merch/internal/notify"
	"github.com/noah-isme/backend-merch/internal/ratelimit"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRequestSinksByMode(t *testing.T) {
	rdb := newTestRedis(t)

	off := &Dependencies{Config: &config.Config{NotifyMode: config.NotifyOff}, Redis: rdb}
	sinks, err := off.RequestSinks()
	require.NoError(t, err)
	require.Empty(t, sinks)

	direct := &Dependencies{
		Config: &config.Config{
			NotifyMode:      config.NotifyDirect,
			SheetWebhookURL: "http://localhost:9999/hook",
		},
		Redis:  rdb,
		Logger: zerolog.Nop(),
	}
	sinks, err = direct.RequestSinks()
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	webhook, ok := sinks[0].(*notify.WebhookSink)
	require.True(t, ok)
	require.NotNil(t, webhook.Replay)

	queued := &Dependencies{Config: &config.Config{NotifyMode: config.NotifyQueue, RedisURL: "redis://" + rdb.Options().Addr}}
	sinks, err = queued.RequestSinks()
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	require.Equal(t, "queue", sinks[0].Name())
	require.NoError(t, queued.Close(context.Background()))
}

func TestDeliverySinksIncludesKafkaWhenBrokersSet(t *testing.T) {
	deps := &Dependencies{Config: &config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaOrderTopic: "orders.created"}}
	sinks := deps.DeliverySinks()
	require.Len(t, sinks, 1)
	require.Equal(t, "kafka", sinks[0].Name())
	require.NotNil(t, deps.KafkaWriter)
	require.NoError(t, deps.Close(context.Background()))
}

func TestNewOrderRateLimitSliding(t *testing.T) {
	rdb := newTestRedis(t)
	cfg := &config.Config{OrderRateLimit: "1-M", RateLimitBackend: config.RateLimitSliding}

	limit, err := NewOrderRateLimit(cfg, rdb, zerolog.Nop())
	require.NoError(t, err)
	_, ok := limit.Limiter.(ratelimit.SlidingWindow)
	require.True(t, ok)

	handler := limit.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/orders", nil))
	require.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/orders", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestNewOrderRateLimitRejectsBadRate(t *testing.T) {
	_, err := NewOrderRateLimit(&config.Config{OrderRateLimit: "nonsense"}, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestAsynqLoggerWritesLevels(t *testing.T) {
	var buf bytes.Buffer
	l := AsynqLogger{Logger: zerolog.New(&buf)}
	l.Info("worker ", "ready")
	l.Warn("slow")
	require.Contains(t, buf.String(), `"level":"info","message":"worker ready"`)
	require.Contains(t, buf.String(), `"level":"warn","message":"slow"`)
}
