package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/beam-cloud/salesmap/pkg/types"
)

const (
	defaultMemoryCacheSize = 1024
	maxMemoryCacheTTL      = 24 * time.Hour
)

type memoryResult struct {
	data      []byte
	expiresAt time.Time
}

// ResultMemoryCache implements ResultCache in memory for local mode.
// Entries carry their own expiry; the LRU bounds total size.
type ResultMemoryCache struct {
	entries *expirable.LRU[string, memoryResult]
}

func NewResultMemoryCache(size int) ResultCache {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	return &ResultMemoryCache{
		entries: expirable.NewLRU[string, memoryResult](size, nil, maxMemoryCacheTTL),
	}
}

func (c *ResultMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, types.ErrCacheMiss
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, types.ErrCacheMiss
	}
	return entry.data, nil
}

func (c *ResultMemoryCache) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.entries.Add(key, memoryResult{data: data, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (c *ResultMemoryCache) Delete(ctx context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}
