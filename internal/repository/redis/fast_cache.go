package redis

import (
	"context"
	"errors"
	"time"

	"edu-chatbot-be/internal/repository/contract"

	goredis "github.com/redis/go-redis/v9"
)

// Deletes the lock only if the caller still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type FastCache struct {
	rdb *goredis.Client
}

var _ contract.FastCache = (*FastCache)(nil)

func NewFastCache(rdb *goredis.Client) *FastCache {
	return &FastCache{rdb: rdb}
}

func (c *FastCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *FastCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *FastCache) Take(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *FastCache) ListAppend(ctx context.Context, key string, values []string, maxLen int, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, toArgs(values)...)
		if maxLen > 0 {
			pipe.LTrim(ctx, key, -int64(maxLen), -1)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (c *FastCache) ListRange(ctx context.Context, key string) ([]string, error) {
	return c.rdb.LRange(ctx, key, 0, -1).Result()
}

func (c *FastCache) ListLast(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.LIndex(ctx, key, -1).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *FastCache) ListReplace(ctx context.Context, key string, values []string, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, toArgs(values)...)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
		}
		return nil
	})
	return err
}

func (c *FastCache) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, token, ttl).Result()
}

func (c *FastCache) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, c.rdb, []string{key}, token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *FastCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
