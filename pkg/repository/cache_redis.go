package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/types"
)

// ResultRedisCache implements ResultCache using Redis
type ResultRedisCache struct {
	rdb *common.RedisClient
}

func NewResultRedisCache(rdb *common.RedisClient) ResultCache {
	return &ResultRedisCache{rdb: rdb}
}

func (c *ResultRedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, types.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *ResultRedisCache) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *ResultRedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}
