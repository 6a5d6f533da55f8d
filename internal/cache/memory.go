package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKV is an in-process KV with TTL expiry, used when no Redis is
// configured and in tests.
type MemoryKV struct {
	mu              sync.RWMutex
	items           map[string]memoryEntry
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
	cleanupInterval time.Duration
}

// NewMemoryKV creates an in-memory store. A non-positive cleanup
// interval defaults to 5 minutes.
func NewMemoryKV(cleanupInterval time.Duration) *MemoryKV {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	kv := &MemoryKV{
		items:           make(map[string]memoryEntry),
		stopCleanup:     make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}

	go kv.cleanupExpired()

	return kv
}

func (kv *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	kv.mu.RLock()
	entry, ok := kv.items[key]
	kv.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		kv.mu.Lock()
		if e, exists := kv.items[key]; exists && now.After(e.expiresAt) {
			delete(kv.items, key)
		}
		kv.mu.Unlock()
		return nil, false, nil
	}

	return entry.value, true, nil
}

func (kv *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		kv.mu.Lock()
		delete(kv.items, key)
		kv.mu.Unlock()
		return nil
	}

	// Copy to decouple from caller's buffer
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	kv.mu.Lock()
	kv.items[key] = memoryEntry{
		value:     valueCopy,
		expiresAt: time.Now().Add(ttl),
	}
	kv.mu.Unlock()

	return nil
}

func (kv *MemoryKV) Del(_ context.Context, key string) error {
	kv.mu.Lock()
	delete(kv.items, key)
	kv.mu.Unlock()
	return nil
}

func (kv *MemoryKV) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := kv.Get(ctx, key)
	return ok, err
}

func (kv *MemoryKV) Keys(_ context.Context) ([]string, error) {
	now := time.Now()

	kv.mu.RLock()
	defer kv.mu.RUnlock()

	keys := make([]string, 0, len(kv.items))
	for k, v := range kv.items {
		if now.After(v.expiresAt) {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (kv *MemoryKV) FlushAll(_ context.Context) error {
	kv.mu.Lock()
	kv.items = make(map[string]memoryEntry)
	kv.mu.Unlock()
	return nil
}

func (kv *MemoryKV) cleanupExpired() {
	ticker := time.NewTicker(kv.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			kv.mu.Lock()
			for k, v := range kv.items {
				if now.After(v.expiresAt) {
					delete(kv.items, k)
				}
			}
			kv.mu.Unlock()
		case <-kv.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine. Call this on shutdown or in tests.
func (kv *MemoryKV) Close() error {
	kv.cleanupOnce.Do(func() {
		close(kv.stopCleanup)
	})
	return nil
}

// Len returns the number of items currently stored.
func (kv *MemoryKV) Len() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return len(kv.items)
}
