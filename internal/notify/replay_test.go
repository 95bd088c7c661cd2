package notify_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/notify"
)

func TestReplayKeyHidesEndpoint(t *testing.T) {
	key := notify.ReplayKey("https://hooks.test/exec?token=s3cret", "evt-1")
	require.True(t, strings.HasPrefix(key, "merch:notify:sent:"))
	require.True(t, strings.HasSuffix(key, ":evt-1"))
	require.NotContains(t, key, "s3cret")
	require.NotEqual(t, key, notify.ReplayKey("https://other.test/exec", "evt-1"))
}

func TestRedisReplayProtectorClaimsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	guard := notify.RedisReplayProtector{Client: rdb}
	ctx := context.Background()
	key := notify.ReplayKey("https://hooks.test", "evt-2")

	ok, err := guard.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Minute, mr.TTL(key))

	ok, err = guard.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, guard.Release(ctx, key))
	ok, err = guard.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists(key))
}

func TestRedisReplayProtectorWithoutClient(t *testing.T) {
	ok, err := notify.RedisReplayProtector{}.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}
