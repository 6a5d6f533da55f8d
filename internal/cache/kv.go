package cache

import (
	"context"
	"time"
)

// KV is the backing key/value store for the question cache.
// Implemented by the in-memory store (dev) and Redis (prod); Keys
// exists so the semantic strategy can scan stored entries.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
	FlushAll(ctx context.Context) error
}
