package memory

import (
	"context"
	"sync"
	"time"

	"edu-chatbot-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// FastCache is an in-process stand-in for Redis, used when Redis is not
// configured and in tests.
type FastCache struct {
	mu    sync.Mutex
	cache *cache.Cache
}

var _ contract.FastCache = (*FastCache)(nil)

func NewFastCache() *FastCache {
	// Default expiration of 1 hour, purging expired items every 10 minutes
	return &FastCache{cache: cache.New(1*time.Hour, 10*time.Minute)}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

func (c *FastCache) Get(_ context.Context, key string) (string, bool, error) {
	if x, found := c.cache.Get(key); found {
		if s, ok := x.(string); ok {
			return s, true, nil
		}
	}
	return "", false, nil
}

func (c *FastCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.cache.Set(key, value, expiration(ttl))
	return nil
}

func (c *FastCache) Take(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	x, found := c.cache.Get(key)
	if !found {
		return "", false, nil
	}
	c.cache.Delete(key)
	s, ok := x.(string)
	return s, ok, nil
}

func (c *FastCache) list(key string) []string {
	if x, found := c.cache.Get(key); found {
		if l, ok := x.([]string); ok {
			return l
		}
	}
	return nil
}

func (c *FastCache) ListAppend(_ context.Context, key string, values []string, maxLen int, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.list(key)
	next := make([]string, 0, len(current)+len(values))
	next = append(next, current...)
	next = append(next, values...)
	if maxLen > 0 && len(next) > maxLen {
		next = next[len(next)-maxLen:]
	}
	c.cache.Set(key, next, expiration(ttl))
	return nil
}

func (c *FastCache) ListRange(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.list(key)
	out := make([]string, len(l))
	copy(out, l)
	return out, nil
}

func (c *FastCache) ListLast(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.list(key)
	if len(l) == 0 {
		return "", false, nil
	}
	return l[len(l)-1], true, nil
}

func (c *FastCache) ListReplace(_ context.Context, key string, values []string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(values) == 0 {
		c.cache.Delete(key)
		return nil
	}
	next := make([]string, len(values))
	copy(next, values)
	c.cache.Set(key, next, expiration(ttl))
	return nil
}

func (c *FastCache) AcquireLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	// Add fails when the key already exists, which makes it set-if-absent.
	if err := c.cache.Add(key, token, expiration(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *FastCache) ReleaseLock(_ context.Context, key, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if x, found := c.cache.Get(key); found && x == token {
		c.cache.Delete(key)
		return true, nil
	}
	return false, nil
}

func (c *FastCache) Ping(context.Context) error {
	return nil
}
