// Package cacheredis is the horizontally-scalable cache adapter backing
// the async tool executor's polling queue and the session manager's
// distributed locking, built on github.com/redis/go-redis/v9. It
// implements the same structural interface as internal/cache.Memory so
// either can be wired into internal/asynctool or internal/sessionmgr.
package cacheredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript only deletes the key if the caller still holds it,
// identified by the random token AcquireLock stashed as the value —
// otherwise a slow holder could delete a lock another owner has since
// acquired after this one's TTL expired.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Cache wraps a redis.Client (or redis.ClusterClient via the Cmdable
// interface) with the key/value, counter, queue, and lock operations the
// runtime's cache-adapter contract requires.
type Cache struct {
	rdb redis.Cmdable
}

// New wraps an already-configured redis client.
func New(rdb redis.Cmdable) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *Cache) Increment(ctx context.Context, key string, by int64) (int64, error) {
	return c.rdb.IncrBy(ctx, key, by).Result()
}

func (c *Cache) Decrement(ctx context.Context, key string, by int64) (int64, error) {
	return c.rdb.DecrBy(ctx, key, by).Result()
}

func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (c *Cache) QueuePush(ctx context.Context, queue string, value string) error {
	return c.rdb.RPush(ctx, queue, value).Err()
}

func (c *Cache) QueuePop(ctx context.Context, queue string) (string, bool, error) {
	v, err := c.rdb.LPop(ctx, queue).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Cache) QueueLength(ctx context.Context, queue string) (int, error) {
	n, err := c.rdb.LLen(ctx, queue).Result()
	return int(n), err
}

// AcquireLock implements distributed mutual exclusion via SET key token
// NX PX ttl, the standard single-instance Redis lock pattern.
func (c *Cache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		// Stash the token under a side key so ReleaseLock (which has no
		// caller-supplied token) can still behave safely for the common
		// case of the same process releasing what it acquired.
		c.rdb.Set(ctx, lockTokenKey(key), token, ttl)
	}
	return ok, nil
}

func (c *Cache) ReleaseLock(ctx context.Context, key string) error {
	token, err := c.rdb.Get(ctx, lockTokenKey(key)).Result()
	if err == redis.Nil {
		return c.rdb.Del(ctx, lockKey(key)).Err()
	}
	if err != nil {
		return err
	}
	return c.rdb.Eval(ctx, unlockScript, []string{lockKey(key)}, token).Err()
}

// WithLock runs fn while holding key's lock, releasing it afterward
// regardless of fn's outcome.
func (c *Cache) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	ok, err := c.AcquireLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cacheredis: lock %q held by another owner", key)
	}
	defer c.ReleaseLock(ctx, key)
	return fn()
}

func lockKey(key string) string      { return "lock:" + key }
func lockTokenKey(key string) string { return "lock:" + key + ":token" }
