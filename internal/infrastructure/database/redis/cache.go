package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

const (
	// purgeBatch is the SCAN page size used by Purge.
	purgeBatch = 200

	// DefaultLoadTimeout bounds a shared load once it is detached from the
	// caller that started it.
	DefaultLoadTimeout = 30 * time.Second
)

// LoadFunc computes a value on a cache miss. Returning keep=false hands the
// value to the callers without storing it.
type LoadFunc func(ctx context.Context) (value interface{}, keep bool, err error)

// Cache stores JSON-encoded values under the client key prefix.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Load fills dest from the cache, or runs load once per key across
	// concurrent callers. A failing cache read degrades to load; a failing
	// write is logged. hit reports whether dest came from Redis.
	Load(ctx context.Context, key string, dest interface{}, ttl time.Duration, load LoadFunc) (hit bool, err error)

	// Purge deletes every key under prefix and returns the count.
	Purge(ctx context.Context, prefix string) (int64, error)
	Ping(ctx context.Context) error
}

type redisCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL  time.Duration
	loadTimeout time.Duration
	flight      singleflight.Group
}

// CacheOption configures NewRedisCache.
type CacheOption func(*redisCache)

// WithPrefix overrides the key prefix of the client configuration.
func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

// WithLoadTimeout bounds each shared load. Non-positive values keep the
// default.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *redisCache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// NewRedisCache builds a cache on client. Prefix and TTL default to the
// client configuration.
func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &redisCache{
		client:      client,
		logger:      log.Named("cache"),
		prefix:      client.config.KeyPrefix,
		defaultTTL:  client.config.DefaultTTL,
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

// expiry spreads TTLs by ±10% so that entries written together do not
// expire together.
func (c *redisCache) expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return 0
	}
	return ttl + time.Duration(float64(ttl)*0.1*(rand.Float64()*2-1))
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, c.expiry(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write cache")
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete from cache")
	}
	return nil
}

func (c *redisCache) Load(ctx context.Context, key string, dest interface{}, ttl time.Duration, load LoadFunc) (bool, error) {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("Cache read failed, loading directly", logging.String("key", key), logging.Err(err))
	}

	// The load is detached from ctx: a caller that gives up must not fail the
	// others waiting on the same key. Shared callers each decode their own
	// copy of the encoded value.
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		v, keep, loadErr := load(lctx)
		if loadErr != nil {
			return nil, loadErr
		}
		b, mErr := json.Marshal(v)
		if mErr != nil {
			return nil, ErrSerializationFailed.WithCause(mErr)
		}
		if keep {
			if setErr := c.client.Set(lctx, c.fullKey(key), b, c.expiry(ttl)).Err(); setErr != nil {
				c.logger.Warn("Cache write failed", logging.String("key", key), logging.Err(setErr))
			}
		}
		return b, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return false, errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "cache load cancelled")
	}
	if res.Err != nil {
		return false, res.Err
	}
	if err := json.Unmarshal(res.Val.([]byte), dest); err != nil {
		return false, ErrSerializationFailed.WithCause(err)
	}
	return false, nil
}

func (c *redisCache) Purge(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	var cursor uint64
	match := c.fullKey(prefix) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, purgeBatch).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan cache")
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to purge cache")
			}
			deleted += n
		}
		if cursor = next; cursor == 0 {
			break
		}
	}
	c.logger.Info("Cache purged", logging.String("prefix", prefix), logging.Int64("deleted", deleted))
	return deleted, nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

//Personal.AI order the ending
