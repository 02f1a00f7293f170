package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type ClientSource interface {
	Get() redis.UniversalClient
}

type Cache struct {
	Redis     ClientSource
	Namespace string
}

// Create namespaced cache over the shared redis client
func NewCache(namespace string, clients ClientSource) *Cache {
	return &Cache{
		Namespace: namespace,
		Redis:     clients,
	}
}

// Get value from Redis. A missing key returns redis.Nil.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	return c.Redis.Get().Get(ctx, c.key(key)).Result()
}

// Store data to Redis
func (c *Cache) Store(ctx context.Context, key string, ttl time.Duration, value string) error {
	return c.Redis.Get().Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.Redis.Get().Del(ctx, c.key(key)).Err()
}

func (c *Cache) Flush(ctx context.Context) error {
	cl := c.Redis.Get()
	iter := cl.Scan(ctx, 0, c.Namespace+":*", 100).Iterator()

	//using pipeline to delete keys efficiently
	pl := cl.Pipeline()
	for iter.Next(ctx) {
		pl.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	_, err := pl.Exec(ctx)
	return err
}

func (c *Cache) key(k string) string {
	return c.Namespace + ":" + k
}
