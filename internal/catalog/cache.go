package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "catalog:version"

// Cache is a versioned read-through cache for material lookups. Mutations
// bump the version, which orphans every key written under the previous one.
// All methods degrade to the loader when no Redis client is configured.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchMaterial loads a cached material or populates the cache from the
// loader. Cache failures fall through to the loader so a Redis outage never
// blocks a lookup.
func (c *Cache) FetchMaterial(ctx context.Context, id string, loader func(context.Context) (Material, error)) (Material, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("catalog:material:%s:%d", id, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var m Material
		if err := json.Unmarshal(payload, &m); err == nil {
			return m, nil
		}
	}

	m, err := loader(ctx)
	if err != nil {
		return Material{}, err
	}
	if raw, err := json.Marshal(m); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return m, nil
}

// Bump invalidates the cache by incrementing the global version.
func (c *Cache) Bump(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, cacheVersionKey).Err()
}
