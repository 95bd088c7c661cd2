package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/ratelimit"
)

func newSliding(t *testing.T) (*miniredis.Miniredis, ratelimit.SlidingWindow) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, ratelimit.SlidingWindow{Client: client, Prefix: "merch:ratelimit:"}
}

func TestSlidingWindowAdmitsUpToMax(t *testing.T) {
	mr, limiter := newSliding(t)
	ctx := context.Background()
	window := 2 * time.Second

	for i := 0; i < 2; i++ {
		allowed, remaining, reset, err := limiter.Allow(ctx, "orders:10.0.0.1", window, 2)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 1-i, remaining)
		require.WithinDuration(t, time.Now().Add(window), reset, time.Second)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "orders:10.0.0.1", window, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	members, err := mr.ZMembers("merch:ratelimit:orders:10.0.0.1")
	require.NoError(t, err)
	require.Len(t, members, 2, "rejected requests are not recorded")
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	_, limiter := newSliding(t)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "orders:a", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _, err = limiter.Allow(ctx, "orders:b", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestSlidingWindowRecoversAfterExpiry(t *testing.T) {
	mr, limiter := newSliding(t)
	ctx := context.Background()
	window := time.Second

	allowed, _, _, err := limiter.Allow(ctx, "orders:c", window, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	mr.FastForward(window)
	allowed, _, _, err = limiter.Allow(ctx, "orders:c", window, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestSlidingWindowWithoutClientAllows(t *testing.T) {
	allowed, remaining, _, err := ratelimit.SlidingWindow{}.Allow(context.Background(), "k", time.Second, 3)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 3, remaining)
}
