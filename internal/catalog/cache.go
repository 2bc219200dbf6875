package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/bundle-quote/internal/lock"
)

// fillWait bounds how long a cache miss waits for another instance's fill.
const fillWait = 5 * time.Second

// RedisCache fronts a remote Source with a shared Redis copy of the raw document
// so that instances do not each hit the artifact origin on cold start.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	next   Source
	locker lock.Locker
}

// NewRedisCache constructs a caching source. A nil client disables caching.
func NewRedisCache(client *redis.Client, key string, ttl time.Duration, next Source) *RedisCache {
	if key == "" {
		key = "catalog:document"
	}
	return &RedisCache{
		client: client,
		key:    key,
		ttl:    ttl,
		next:   next,
		locker: lock.Locker{Client: client},
	}
}

// Load returns the cached document when present. On a miss one instance fills
// the cache under a Redis lock while others wait and re-read. Cache errors never
// fail the load.
func (c *RedisCache) Load(ctx context.Context) ([]byte, error) {
	if c == nil || c.next == nil {
		return nil, errors.New("catalog: cache source not configured")
	}
	if c.client == nil {
		return c.next.Load(ctx)
	}
	if data, ok := c.cached(ctx); ok {
		return data, nil
	}

	var (
		data []byte
		ran  bool
	)
	lockCtx, cancel := context.WithTimeout(ctx, fillWait)
	defer cancel()
	err := c.locker.WithLock(lockCtx, c.key+":fill", fillWait, func(ctx context.Context) error {
		ran = true
		if cached, ok := c.cached(ctx); ok {
			data = cached
			return nil
		}
		var err error
		data, err = c.fill(ctx)
		return err
	})
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if ran {
		return nil, err
	}
	// lock unavailable; load directly
	return c.fill(ctx)
}

func (c *RedisCache) cached(ctx context.Context) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	if _, err := Parse(data); err != nil {
		return nil, false
	}
	return data, true
}

func (c *RedisCache) fill(ctx context.Context) ([]byte, error) {
	data, err := c.next.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, perr := Parse(data); perr == nil {
		_ = c.client.Set(ctx, c.key, data, c.ttl).Err()
	}
	return data, nil
}
