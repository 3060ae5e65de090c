package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contabil/fiscore/pkg/errors"
)

// ErrCacheMiss is returned by GetJSON when the key does not exist.
var ErrCacheMiss = errors.New(errors.ErrCodeNotFound, "cache miss")

// Cache is a small JSON value cache.  The matcher uses it to memoize
// identifier-to-client and fiscal-code-to-obligation lookups between OCR
// runs of the same batch.
type Cache struct {
	client *Client
	ttl    time.Duration
}

// NewCache builds a cache whose entries expire after ttl.
func NewCache(client *Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// SetJSON stores value under key, JSON-encoded.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode cache value")
	}
	if err := c.client.rdb.Set(ctx, c.client.Key("cache", key), b, c.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache value")
	}
	return nil
}

// GetJSON loads the value under key into dest.  Returns ErrCacheMiss when
// absent.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	b, err := c.client.rdb.Get(ctx, c.client.Key("cache", key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get cache value")
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode cache value")
	}
	return nil
}

// Delete removes a key; missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.rdb.Del(ctx, c.client.Key("cache", key)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete cache value")
	}
	return nil
}
