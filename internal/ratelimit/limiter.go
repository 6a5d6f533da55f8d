package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dailyExpiry   = 24 * time.Hour
	sweepInterval = time.Hour
	probeInterval = 30 * time.Second
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed bool
	Count   int64
	Limit   int64
}

type memCounter struct {
	count     int64
	day       string
	updatedAt time.Time
}

// DailyLimiter enforces a per-day request limit on a durable Redis
// counter. When Redis is unreachable it degrades to a process-local
// map keyed identically; the fallback is best-effort and resets on
// restart. An over-limit increment is rolled back immediately so the
// stored count never drifts past the limit.
type DailyLimiter struct {
	client *redis.Client // nil means memory-only
	prefix string
	limit  int64
	logger *zap.Logger

	mu  sync.Mutex
	mem map[string]*memCounter

	degraded atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter and starts its background sweep. The sweep
// bounds fallback memory by dropping counters idle for over 24h, and
// probes Redis to leave degraded mode once the store is back.
func New(client *redis.Client, prefix string, limit int64, logger *zap.Logger) *DailyLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &DailyLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		logger: logger.Named("ratelimit"),
		mem:    make(map[string]*memCounter),
		stop:   make(chan struct{}),
	}
	if client == nil {
		l.degraded.Store(true)
	}

	go l.background()

	return l
}

// Allow increments today's counter for id and reports whether the
// request is within the daily limit. An empty id addresses the shared
// counter; non-empty ids (caller addresses) get their own namespace.
func (l *DailyLimiter) Allow(ctx context.Context, id string) Result {
	if !l.degraded.Load() {
		res, err := l.allowRedis(ctx, id)
		if err == nil {
			return res
		}
		l.degraded.Store(true)
		l.logger.Warn("rate limit store unreachable, falling back to in-memory counting",
			zap.Error(err),
		)
	}
	return l.allowMemory(id)
}

func (l *DailyLimiter) allowRedis(ctx context.Context, id string) (Result, error) {
	key := l.key(id)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dailyExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	count := incr.Val()
	if count <= l.limit {
		return Result{Allowed: true, Count: count, Limit: l.limit}, nil
	}

	// Compensate the over-limit increment so the stored count stays at
	// the limit.
	if err := l.client.Decr(ctx, key).Err(); err != nil {
		l.logger.Warn("rate limit rollback failed", zap.String("key", key), zap.Error(err))
	}

	return Result{Allowed: false, Count: count - 1, Limit: l.limit}, nil
}

func (l *DailyLimiter) allowMemory(id string) Result {
	key := l.key(id)
	today := todayUTC()
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.mem[key]
	if !ok || c.day != today {
		c = &memCounter{day: today}
		l.mem[key] = c
	}
	c.updatedAt = now

	c.count++
	if c.count <= l.limit {
		return Result{Allowed: true, Count: c.count, Limit: l.limit}
	}

	c.count--
	return Result{Allowed: false, Count: c.count, Limit: l.limit}
}

// Close stops the background sweep.
func (l *DailyLimiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

func (l *DailyLimiter) background() {
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()
	probe := time.NewTicker(probeInterval)
	defer probe.Stop()

	for {
		select {
		case <-sweep.C:
			l.sweepMemory()
		case <-probe.C:
			l.probeRedis()
		case <-l.stop:
			return
		}
	}
}

func (l *DailyLimiter) sweepMemory() {
	cutoff := time.Now().Add(-dailyExpiry)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.mem {
		if c.updatedAt.Before(cutoff) {
			delete(l.mem, key)
		}
	}
}

// probeRedis restores the durable path after an outage. go-redis has no
// disconnect events, so recovery is probed rather than event-driven.
func (l *DailyLimiter) probeRedis() {
	if l.client == nil || !l.degraded.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.client.Ping(ctx).Err(); err == nil {
		l.degraded.Store(false)
		l.logger.Info("rate limit store reconnected")
	}
}

func (l *DailyLimiter) key(id string) string {
	if id == "" {
		return l.prefix + todayUTC()
	}
	return l.prefix + id + ":" + todayUTC()
}

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}
