package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"artrag-gateway/pkg/logging"
)

// LoggingKV wraps a KV with per-operation structured logging.
type LoggingKV struct {
	inner KV
}

// NewLoggingKV returns a store that logs every backing operation.
func NewLoggingKV(inner KV) KV {
	return &LoggingKV{inner: inner}
}

func (kv *LoggingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := kv.inner.Get(ctx, key)

	logger := logging.L(ctx)
	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}

	fields := []zap.Field{
		zap.String("key", key),
		zap.String("result", result),
		zap.Duration("latency", time.Since(start)),
	}

	if err != nil {
		logger.Warn("cache_kv_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_kv_get", fields...)
	}

	return value, ok, err
}

func (kv *LoggingKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := kv.inner.Set(ctx, key, value, ttl)

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("key", key),
		zap.Int("bytes", len(value)),
		zap.Duration("ttl", ttl),
		zap.Duration("latency", time.Since(start)),
	}

	if err != nil {
		logger.Warn("cache_kv_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_kv_set", fields...)
	}

	return err
}

func (kv *LoggingKV) Del(ctx context.Context, key string) error {
	err := kv.inner.Del(ctx, key)
	if err != nil {
		logging.L(ctx).Warn("cache_kv_del", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (kv *LoggingKV) Exists(ctx context.Context, key string) (bool, error) {
	return kv.inner.Exists(ctx, key)
}

func (kv *LoggingKV) Keys(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := kv.inner.Keys(ctx)
	if err != nil {
		logging.L(ctx).Warn("cache_kv_keys", zap.Error(err))
		return nil, err
	}
	logging.L(ctx).Debug("cache_kv_keys",
		zap.Int("count", len(keys)),
		zap.Duration("latency", time.Since(start)),
	)
	return keys, nil
}

func (kv *LoggingKV) FlushAll(ctx context.Context) error {
	err := kv.inner.FlushAll(ctx)
	if err != nil {
		logging.L(ctx).Warn("cache_kv_flush", zap.Error(err))
	}
	return err
}
