package credibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the subset of the Redis client used by RedisCache.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache shares profiles produced by deep lookups across processes.
type RedisCache struct {
	Client KV
	Prefix string
	TTL    time.Duration
}

func (c *RedisCache) key(domain string) string { return c.Prefix + domain }

// Find implements Source. Hits are reported with cached provenance.
func (c *RedisCache) Find(ctx context.Context, domain string) (Profile, bool, error) {
	raw, err := c.Client.Get(ctx, c.key(domain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("redis get %s: %w", domain, err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, false, fmt.Errorf("decode cached profile %s: %w", domain, err)
	}
	p.Provenance = ProvenanceCached
	return p, true, nil
}

// Store writes p under its domain.
func (c *RedisCache) Store(ctx context.Context, p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.Domain, err)
	}
	if err := c.Client.Set(ctx, c.key(p.Domain), raw, c.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.Domain, err)
	}
	return nil
}

// Forget drops the cached profile for domain.
func (c *RedisCache) Forget(ctx context.Context, domain string) error {
	return c.Client.Del(ctx, c.key(domain)).Err()
}
