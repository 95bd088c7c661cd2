package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveCombosCacheKey holds the active combo snapshot.
const ActiveCombosCacheKey = "merch:catalog:combos:active"

type comboSnapshot struct {
	CachedAt time.Time         `json:"cachedAt"`
	Combos   []ComboDefinition `json:"combos"`
}

// ComboCache keeps the active combo list in Redis for ttl. A nil cache, nil
// client or non-positive ttl turns every call into a miss.
type ComboCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewComboCache(client redis.Cmdable, ttl time.Duration) *ComboCache {
	return &ComboCache{client: client, ttl: ttl}
}

func (c *ComboCache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Load returns the cached combos and whether a snapshot was present.
func (c *ComboCache) Load(ctx context.Context) ([]ComboDefinition, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, ActiveCombosCacheKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("read combo cache: %w", err)
	}
	var snap comboSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode combo cache: %w", err)
	}
	return snap.Combos, true, nil
}

// Save replaces the snapshot.
func (c *ComboCache) Save(ctx context.Context, combos []ComboDefinition) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(comboSnapshot{CachedAt: time.Now().UTC(), Combos: combos})
	if err != nil {
		return fmt.Errorf("encode combo cache: %w", err)
	}
	return c.client.Set(ctx, ActiveCombosCacheKey, raw, c.ttl).Err()
}

// Invalidate drops the snapshot after catalog writes. It works even when
// caching is disabled by ttl so seeding always clears stale entries.
func (c *ComboCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, ActiveCombosCacheKey).Err()
}
