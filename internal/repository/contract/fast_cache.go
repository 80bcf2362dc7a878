package contract

import (
	"context"
	"time"
)

// FastCache is the low-latency tier: plain keys with TTL, bounded lists for
// session buffers and a set-if-absent lock primitive.
type FastCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns the value and deletes the key in one step.
	Take(ctx context.Context, key string) (string, bool, error)

	// ListAppend pushes values to the tail, keeps only the newest maxLen items
	// and refreshes the TTL.
	ListAppend(ctx context.Context, key string, values []string, maxLen int, ttl time.Duration) error
	ListRange(ctx context.Context, key string) ([]string, error)
	ListLast(ctx context.Context, key string) (string, bool, error)
	ListReplace(ctx context.Context, key string, values []string, ttl time.Duration) error

	// AcquireLock succeeds only if key is absent. ReleaseLock deletes key only
	// while it still holds token.
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)

	Ping(ctx context.Context) error
}
