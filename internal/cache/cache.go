// Package cache fronts expensive read computations with redis. A nil redis
// client turns the cache into a passthrough; redis errors degrade to direct
// computation instead of failing the request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultPrefix = "dealdesk"

// Cache stores JSON values under generation-versioned keys. Bumping the
// generation orphans every key written before it; redis expires them by TTL.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	local  atomic.Int64
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithLogger sets the logger for the cache
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New builds a cache. client may be nil.
func New(client *redis.Client, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		prefix: defaultPrefix,
		ttl:    ttl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether values are stored in redis.
func (c *Cache) Enabled() bool {
	return c.client != nil
}

// Stats returns the hit and miss counts since startup.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key hashes parts into a stable, bounded key suffix.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:12])
}

func (c *Cache) generationKey(namespace string) string {
	return fmt.Sprintf("%s:%s:gen", c.prefix, namespace)
}

// Generation returns the current generation of namespace.
func (c *Cache) Generation(ctx context.Context, namespace string) int64 {
	if c.client == nil {
		return c.local.Load()
	}
	gen, err := c.client.Get(ctx, c.generationKey(namespace)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("failed to read cache generation", zap.String("namespace", namespace), zap.Error(err))
		}
		return c.local.Load()
	}
	return gen
}

// Bump invalidates every value cached under namespace.
func (c *Cache) Bump(ctx context.Context, namespace string) {
	c.local.Add(1)
	if c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, c.generationKey(namespace)).Err(); err != nil {
		c.logger.Warn("failed to bump cache generation", zap.String("namespace", namespace), zap.Error(err))
	}
}

// Load returns the value cached under namespace/key or computes it with fn.
// Concurrent loads of the same key share one call to fn.
func Load[T any](ctx context.Context, c *Cache, namespace, key string, fn func(context.Context) (T, error)) (T, error) {
	fullKey := fmt.Sprintf("%s:%s:v%d:%s", c.prefix, namespace, c.Generation(ctx, namespace), key)

	if c.client != nil {
		data, err := c.client.Get(ctx, fullKey).Bytes()
		switch {
		case err == nil:
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				c.hits.Add(1)
				return v, nil
			}
			c.logger.Warn("discarding undecodable cache entry", zap.String("key", fullKey))
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("cache read failed, computing directly", zap.String("key", fullKey), zap.Error(err))
		}
	}
	c.misses.Add(1)

	res, err, _ := c.group.Do(fullKey, func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		if c.client != nil {
			if data, err := json.Marshal(v); err == nil {
				if err := c.client.Set(ctx, fullKey, data, c.ttl).Err(); err != nil {
					c.logger.Warn("cache write failed", zap.String("key", fullKey), zap.Error(err))
				}
			}
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}
