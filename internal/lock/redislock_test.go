package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, Prefix: "merch:lock:", RetryBackoff: 5 * time.Millisecond}, mr
}

func TestDoSerialisesHolders(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstIn := make(chan struct{})
	releaseFirst := make(chan struct{})
	done := make(chan error, 2)

	go func() {
		done <- locker.Do(ctx, "seed", time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstIn)
			<-releaseFirst
			return nil
		})
	}()
	<-firstIn

	go func() {
		done <- locker.Do(ctx, "seed", time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	close(releaseFirst)
	require.NoError(t, <-done)
	require.NoError(t, <-done)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestTryDoReportsHeld(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	err := locker.TryDo(ctx, "seed", time.Second, func(ctx context.Context) error {
		require.True(t, mr.Exists("merch:lock:seed"))
		inner := locker.TryDo(ctx, "seed", time.Second, func(context.Context) error { return nil })
		require.ErrorIs(t, inner, lock.ErrHeld)
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("merch:lock:seed"))
}

func TestTryDoReleasesOnError(t *testing.T) {
	locker, mr := newLocker(t)
	boom := errors.New("boom")

	err := locker.TryDo(context.Background(), "seed", time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("merch:lock:seed"))
}

func TestDoStopsWaitingOnCancel(t *testing.T) {
	locker, mr := newLocker(t)
	require.NoError(t, mr.Set("merch:lock:seed", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.Do(ctx, "seed", time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
