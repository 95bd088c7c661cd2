package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript trims expired entries and records the request only when it
// fits, so rejected calls never extend a client's penalty. It returns
// {allowed, count, oldest score in ms}.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < tonumber(ARGV[4]) then
  redis.call('ZADD', key, ARGV[1], ARGV[5])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, ARGV[3])
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = tonumber(ARGV[1])
if oldest[2] then first = tonumber(oldest[2]) end
return {allowed, count, first}
`)

// SlidingWindow is a Backend over a Redis sorted set per key, scored by
// request time in milliseconds.
type SlidingWindow struct {
	Client redis.Scripter
	Prefix string
}

// Allow implements Backend. reset is when the oldest counted request leaves
// the window.
func (l SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	nowMS := now.UnixMilli()
	windowMS := window.Milliseconds()
	args := []any{
		strconv.FormatInt(nowMS, 10),
		strconv.FormatInt(nowMS-windowMS, 10),
		strconv.FormatInt(windowMS, 10),
		max,
		uuid.NewString(),
	}
	res, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key}, args...).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("sliding window %q: %w", key, err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("sliding window %q: unexpected reply %v", key, res)
	}

	count := int(res[1])
	reset := time.UnixMilli(res[2]).Add(window)
	return res[0] == 1, maxInt(max-count, 0), reset, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
