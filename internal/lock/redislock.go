package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by TryDo when another holder owns the key.
var ErrHeld = errors.New("lock: held by another process")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`

// Locker serialises maintenance jobs (schema setup, catalog seeding) across
// processes sharing one Redis.
type Locker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
}

// Do waits for the lock on key and runs fn while holding it. The wait ends
// when ctx is done.
func (l Locker) Do(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if err := l.check(fn); err != nil {
		return err
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	for {
		err := l.TryDo(ctx, key, ttl, fn)
		if !errors.Is(err, ErrHeld) {
			return err
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryDo runs fn only if the lock on key is free, and returns ErrHeld otherwise.
func (l Locker) TryDo(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if err := l.check(fn); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	name := l.Prefix + key
	ok, err := l.R.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		_ = l.R.Eval(context.WithoutCancel(ctx), releaseScript, []string{name}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) check(fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	return nil
}
