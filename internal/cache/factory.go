package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Backend   string // "memory" or "redis"
	Strategy  string // "hash" or "semantic"
	Prefix    string
	TTL       time.Duration
	Enabled   bool
	Threshold float64
}

// New assembles the question cache from configuration. The redis
// backend expects a live client; anything else falls back to the
// in-memory store.
func New(cfg Config, redisClient *redis.Client, embedder Embedder, logger *zap.Logger) *Cache {
	var kv KV
	switch cfg.Backend {
	case "redis":
		kv = NewRedisKV(redisClient, cfg.Prefix)
	default:
		kv = NewMemoryKV(cfg.TTL)
	}
	kv = NewLoggingKV(kv)

	var strategy Strategy
	switch cfg.Strategy {
	case "hash":
		strategy = HashStrategy{}
	default:
		strategy = NewSemanticStrategy(embedder, kv, cfg.Threshold, logger)
	}

	return NewCache(kv, strategy, cfg.TTL, cfg.Enabled, logger)
}
