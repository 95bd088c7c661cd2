package app

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// StorePinger is the slice of repo.Handle readiness needs.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Readiness implements health.Checker over the order store and Redis.
type Readiness struct {
	Store StorePinger
	Redis redis.Cmdable
}

func (r Readiness) PingStore(ctx context.Context, timeout time.Duration) error {
	if r.Store == nil {
		return errors.New("store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.Store.Ping(ctx)
}

func (r Readiness) PingRedis(ctx context.Context, timeout time.Duration) error {
	if r.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.Redis.Ping(ctx).Err()
}
