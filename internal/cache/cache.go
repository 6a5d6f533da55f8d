package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"artrag-gateway/internal/metrics"
)

// Entry is one cached answer.
type Entry struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	Timestamp int64    `json:"timestamp"` // ms epoch
}

// semanticEntry is what the semantic strategy persists: the entry plus
// the question and its embedding for similarity lookups.
type semanticEntry struct {
	Entry
	OriginalQuestion string    `json:"originalQuestion"`
	Embedding        []float32 `json:"embedding"`
}

// Cache is the question-level answer cache. It is a latency
// optimization, never a correctness dependency: every failure degrades
// to a miss or a no-op with a logged warning.
type Cache struct {
	kv       KV
	strategy Strategy
	ttl      time.Duration
	enabled  bool
	logger   *zap.Logger
}

// NewCache wires a strategy over a backing store.
func NewCache(kv KV, strategy Strategy, ttl time.Duration, enabled bool, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		kv:       kv,
		strategy: strategy,
		ttl:      ttl,
		enabled:  enabled,
		logger:   logger.Named("cache"),
	}
}

// Enabled reports whether the cache participates in request handling.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Get looks up an answer for question. Semantic strategies search by
// similarity; the hash strategy requires a normalized-equal question.
func (c *Cache) Get(ctx context.Context, question string) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}

	start := time.Now()

	if searcher, ok := c.strategy.(SimilaritySearcher); ok {
		entry, hit := searcher.FindSimilar(ctx, question)
		if hit {
			metrics.CacheHitsTotal.WithLabelValues(c.strategy.Tier()).Inc()
			c.logger.Info("semantic cache hit",
				zap.Duration("lookup", time.Since(start)),
			)
		}
		return entry, hit
	}

	raw, hit, err := c.kv.Get(ctx, c.strategy.Key(question))
	if err != nil {
		c.logger.Warn("cache get failed", zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("cache entry malformed, treating as miss", zap.Error(err))
		return nil, false
	}

	metrics.CacheHitsTotal.WithLabelValues(c.strategy.Tier()).Inc()
	c.logger.Info("cache hit",
		zap.Duration("lookup", time.Since(start)),
	)

	return &entry, true
}

// Set stores an answer under the question's key. Best-effort: errors
// are logged and swallowed.
func (c *Cache) Set(ctx context.Context, question string, entry Entry) {
	if !c.enabled {
		return
	}

	var (
		raw []byte
		err error
	)
	if semantic, ok := c.strategy.(*SemanticStrategy); ok {
		raw, err = semantic.encode(ctx, question, entry)
	} else {
		raw, err = json.Marshal(entry)
	}
	if err != nil {
		c.logger.Warn("cache encode failed", zap.Error(err))
		return
	}

	if err := c.kv.Set(ctx, c.strategy.Key(question), raw, c.ttl); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err))
	}
}

// Del removes the entry stored under the question's key.
func (c *Cache) Del(ctx context.Context, question string) {
	if !c.enabled {
		return
	}
	if err := c.kv.Del(ctx, c.strategy.Key(question)); err != nil {
		c.logger.Warn("cache del failed", zap.Error(err))
	}
}

// Exists reports whether an exact-key entry is stored for question.
func (c *Cache) Exists(ctx context.Context, question string) bool {
	if !c.enabled {
		return false
	}
	ok, err := c.kv.Exists(ctx, c.strategy.Key(question))
	if err != nil {
		c.logger.Warn("cache exists failed", zap.Error(err))
		return false
	}
	return ok
}

// FlushAll drops every cached entry.
func (c *Cache) FlushAll(ctx context.Context) {
	if !c.enabled {
		return
	}
	if err := c.kv.FlushAll(ctx); err != nil {
		c.logger.Warn("cache flush failed", zap.Error(err))
	}
}
