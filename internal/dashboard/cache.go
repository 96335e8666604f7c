package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetguard/pkg/platform/circuit"
	"fleetguard/pkg/platform/sentinel"
)

// Cache stores rendered dashboards. Get returns sentinel.ErrNotFound on a
// miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const cacheKeyPrefix = "fleetguard:dashboard:"

// RedisCache keeps dashboards in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, cacheKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// MemoryCache is an in-process cache used as the breaker fallback.
type MemoryCache struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, sentinel.ErrNotFound
	}
	return e.value, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expires: c.now().Add(ttl)}
	return nil
}

// GuardedCache tries the primary cache on every call and serves the fallback
// while the breaker is open. Primary misses count as successes.
type GuardedCache struct {
	primary  Cache
	fallback Cache
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics
}

func NewGuardedCache(primary, fallback Cache, breaker *circuit.Breaker, logger *slog.Logger, metrics *Metrics) *GuardedCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedCache{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
		metrics:  metrics,
	}
}

func (c *GuardedCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.primary.Get(ctx, key)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		if c.failed(ctx, err) {
			return c.fallback.Get(ctx, key)
		}
		return nil, err
	}
	if !c.succeeded(ctx) {
		return c.fallback.Get(ctx, key)
	}
	return b, err
}

func (c *GuardedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = c.fallback.Set(ctx, key, value, ttl)
	if err := c.primary.Set(ctx, key, value, ttl); err != nil {
		if c.failed(ctx, err) {
			return nil
		}
		return err
	}
	c.succeeded(ctx)
	return nil
}

func (c *GuardedCache) failed(ctx context.Context, err error) bool {
	c.metrics.IncCacheError()
	useFallback, change := c.breaker.RecordFailure()
	if change.Opened {
		c.metrics.SetBreakerOpen(true)
		c.logger.WarnContext(ctx, "dashboard cache circuit opened",
			"breaker", c.breaker.Name(),
			"error", err,
		)
	}
	return useFallback
}

func (c *GuardedCache) succeeded(ctx context.Context) bool {
	usePrimary, change := c.breaker.RecordSuccess()
	if change.Closed {
		c.metrics.SetBreakerOpen(false)
		c.logger.InfoContext(ctx, "dashboard cache circuit closed",
			"breaker", c.breaker.Name(),
		)
	}
	return usePrimary
}
