package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Cache is what the services depend on. RedisCache and MultiLevelCache
// both satisfy it.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Generation(ctx context.Context, key string) (int64, error)
	BumpGeneration(ctx context.Context, key string) (int64, error)
	Stats() map[string]interface{}
	Health(ctx context.Context) error
	Close() error
}

type MultiLevelConfig struct {
	// L1TTL caps how long a value lives in process memory.
	L1TTL        time.Duration
	L1MaxEntries int
	Breaker      *CircuitBreakerConfig
}

func DefaultMultiLevelConfig() *MultiLevelConfig {
	return &MultiLevelConfig{
		L1TTL:        30 * time.Second,
		L1MaxEntries: 10000,
		Breaker:      DefaultCircuitBreakerConfig(),
	}
}

// MultiLevelCache fronts an optional Redis cache with process memory.
// Redis calls go through a circuit breaker; once it opens, lookups are
// treated as misses.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	l1TTL   time.Duration
	breaker *CircuitBreaker
	metrics *CacheMetrics

	// generations backs Generation and BumpGeneration when there is no L2.
	mu          sync.Mutex
	generations map[string]int64
}

func NewMultiLevelCache(redisCache *RedisCache, config *MultiLevelConfig) *MultiLevelCache {
	if config == nil {
		config = DefaultMultiLevelConfig()
	}

	return &MultiLevelCache{
		l1:      NewMemoryCache(config.L1MaxEntries),
		l2:      redisCache,
		l1TTL:   config.L1TTL,
		breaker: NewCircuitBreaker(config.Breaker),
		metrics: NewCacheMetrics("multilevel"),

		generations: make(map[string]int64),
	}
}

func (c *MultiLevelCache) Metrics() *CacheMetrics {
	return c.metrics
}

func (c *MultiLevelCache) Breaker() *CircuitBreaker {
	return c.breaker
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.l1.Set(key, data, c.localTTL(ttl))
	c.metrics.RecordSet()

	if c.l2 == nil {
		return nil
	}
	return c.remote(func() error {
		return c.l2.setBytes(ctx, key, data, ttl)
	})
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, found := c.l1.Get(key); found {
		c.metrics.RecordHit()
		return decode(data, dest)
	}

	if c.l2 == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	var data []byte
	miss := false
	err := c.remote(func() error {
		var getErr error
		data, getErr = c.l2.getBytes(ctx, key)
		if errors.Is(getErr, ErrCacheMiss) {
			miss = true
			return nil
		}
		return getErr
	})
	if err != nil || miss {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	c.metrics.RecordHit()
	c.l1.Set(key, data, c.l1TTL)
	return decode(data, dest)
}

func (c *MultiLevelCache) Delete(ctx context.Context, key string) error {
	c.l1.Delete(key)
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}
	return c.remote(func() error {
		return c.l2.Delete(ctx, key)
	})
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	c.l1.DeletePattern(pattern)
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}
	return c.remote(func() error {
		return c.l2.DeletePattern(ctx, pattern)
	})
}

// Generation never consults L1: counters must agree across replicas, so
// with an L2 configured they are read from Redis on every call.
func (c *MultiLevelCache) Generation(ctx context.Context, key string) (int64, error) {
	if c.l2 == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.generations[key], nil
	}

	var gen int64
	err := c.remote(func() error {
		var genErr error
		gen, genErr = c.l2.Generation(ctx, key)
		return genErr
	})
	return gen, err
}

func (c *MultiLevelCache) BumpGeneration(ctx context.Context, key string) (int64, error) {
	if c.l2 == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.generations[key]++
		return c.generations[key], nil
	}

	var gen int64
	err := c.remote(func() error {
		var bumpErr error
		gen, bumpErr = c.l2.BumpGeneration(ctx, key)
		return bumpErr
	})
	return gen, err
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":      c.l1.Stats(),
		"metrics": c.metrics.Snapshot(),
		"breaker": c.breaker.GetStats(),
	}

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}

	return stats
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 != nil {
		return c.l2.Health(ctx)
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func (c *MultiLevelCache) localTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1TTL {
		return c.l1TTL
	}
	return ttl
}

func (c *MultiLevelCache) remote(fn func() error) error {
	err := c.breaker.Execute(fn)
	if err == nil {
		return nil
	}
	c.metrics.RecordError()
	if errors.Is(err, ErrCircuitBreakerOpen) {
		return ErrCacheDown
	}
	return err
}

func decode(data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return nil
}
