package ratelimit

import (
	"context"
	"fmt"
	"time"

	limiter "github.com/ulule/limiter/v3"
)

// StoreLimiter is a fixed-window Backend on top of a ulule limiter store.
type StoreLimiter struct {
	Store limiter.Store
}

// Allow implements Backend.
func (l StoreLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if l.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(l.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}

// ParseRate converts a formatted rate such as "30-M" into window and max.
func ParseRate(formatted string) (time.Duration, int, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return 0, 0, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	return rate.Period, int(rate.Limit), nil
}
