package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a namespaced redis byte store fronting object downloads.
type Cache struct {
	Redis     redis.UniversalClient
	Namespace string
}

func NewCache(namespace string, redisCl redis.UniversalClient) *Cache {
	return &Cache{
		Namespace: namespace,
		Redis:     redisCl,
	}
}

// Get returns the cached bytes; redis.Nil when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.Redis.Get(ctx, c.Namespace+":"+key).Bytes()
}

// Store caches value under the namespace for ttl.
func (c *Cache) Store(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	return c.Redis.Set(ctx, c.Namespace+":"+key, value, ttl).Err()
}

// Remove drops one key, used when the underlying object is deleted.
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.Redis.Del(ctx, c.Namespace+":"+key).Err()
}

// Ping reports whether the backing redis connection is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	return c.Redis.Ping(ctx).Err()
}
