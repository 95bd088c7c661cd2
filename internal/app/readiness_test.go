package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/app"
)

type slowStore struct{}

func (slowStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestReadinessPingsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := app.Readiness{Redis: rdb}
	require.NoError(t, r.PingRedis(context.Background(), time.Second))

	mr.Close()
	require.Error(t, r.PingRedis(context.Background(), 100*time.Millisecond))
}

func TestReadinessStoreTimeout(t *testing.T) {
	r := app.Readiness{Store: slowStore{}}
	err := r.PingStore(context.Background(), 10*time.Millisecond)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestReadinessUnconfigured(t *testing.T) {
	require.Error(t, app.Readiness{}.PingStore(context.Background(), time.Second))
	require.Error(t, app.Readiness{}.PingRedis(context.Background(), time.Second))
}
