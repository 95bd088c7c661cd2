package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/resilience"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx), "one failure is below the sample size")
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx))
	require.Equal(t, resilience.Open, breaker.State())

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx))
	require.Equal(t, resilience.HalfOpen, breaker.State())
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	breaker := resilience.NewBreaker(1, 1, 10*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	time.Sleep(20 * time.Millisecond)

	require.True(t, breaker.Allow(ctx))
	require.False(t, breaker.Allow(ctx), "second caller must wait for the probe")

	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerWindowForgetsOldFailures(t *testing.T) {
	breaker := resilience.NewBreaker(3, 0.6, time.Minute).WithWindow(20 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.True(t, breaker.Allow(ctx))
		breaker.Report(ctx, false)
	}
	time.Sleep(30 * time.Millisecond)

	// the next window starts from zero, so one failure among three calls stays closed
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerMetricsFollowTransitions(t *testing.T) {
	resilience.MustRegisterMetrics("merch_test", prometheus.NewRegistry())

	breaker := resilience.NewBreaker(1, 0.5, 20*time.Millisecond).WithTarget("sheet-webhook")
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.StateGauge().WithLabelValues("sheet-webhook")))

	require.Eventually(t, func() bool { return breaker.Allow(ctx) }, 200*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(resilience.StateGauge().WithLabelValues("sheet-webhook")))

	breaker.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(resilience.StateGauge().WithLabelValues("sheet-webhook")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.OpenedCounter().WithLabelValues("sheet-webhook")))

	transitions := resilience.TransitionCounter()
	require.Equal(t, 1.0, testutil.ToFloat64(transitions.WithLabelValues("sheet-webhook", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(transitions.WithLabelValues("sheet-webhook", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(transitions.WithLabelValues("sheet-webhook", "half_open", "closed")))
}

func TestBackoffDoublesPerAttempt(t *testing.T) {
	base := 50 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 0, 0))
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, 8*base, resilience.Backoff(base, 4, 0))

	for i := 0; i < 20; i++ {
		d := resilience.Backoff(base, 2, 0.25)
		require.GreaterOrEqual(t, d, 75*time.Millisecond)
		require.LessOrEqual(t, d, 125*time.Millisecond)
	}
}
