package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stokku/backend/internal/domain"
)

type RedisItemLookupCache struct {
	client *redis.Client
}

func NewRedisItemLookupCache(addr string, password string, db int) *RedisItemLookupCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisItemLookupCache{client: client}
}

func (c *RedisItemLookupCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisItemLookupCache) Close() error {
	return c.client.Close()
}

func (c *RedisItemLookupCache) Get(ctx context.Context, key string) (*domain.Item, bool, error) {
	val, err := c.client.Get(ctx, lookupKey(key)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var item domain.Item
	if err := json.Unmarshal([]byte(val), &item); err != nil {
		return nil, false, err
	}
	return &item, true, nil
}

func (c *RedisItemLookupCache) Set(ctx context.Context, key string, item *domain.Item, ttl time.Duration) error {
	if item == nil {
		return nil
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, lookupKey(key), payload, ttl).Err()
}

func (c *RedisItemLookupCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		prefixed = append(prefixed, lookupKey(key))
	}
	if len(prefixed) == 0 {
		return nil
	}
	return c.client.Del(ctx, prefixed...).Err()
}

func lookupKey(key string) string {
	return "item-lookup:" + key
}
