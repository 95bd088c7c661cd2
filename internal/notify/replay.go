package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayProtector claims an event for one endpoint so repeated task runs or
// direct retries never post the same event twice within the TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const replayPrefix = "merch:notify:sent:"

// ReplayKey scopes an event id to its endpoint; the URL is hashed so secrets
// in query strings never land in Redis keys.
func ReplayKey(endpoint, eventID string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return replayPrefix + hex.EncodeToString(sum[:8]) + ":" + eventID
}

// RedisReplayProtector stores claims as plain keys holding the claim time.
// A nil client disables the guard.
type RedisReplayProtector struct {
	Client redis.UniversalClient
}

func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	claimed := strconv.FormatInt(time.Now().Unix(), 10)
	return r.Client.SetNX(ctx, key, claimed, ttl).Result()
}

// Release drops a claim after a failed delivery so the next attempt can send.
func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
