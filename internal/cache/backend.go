package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is a string key-value store with per-entry TTL. Values are
// JSON documents produced by the caches built on top.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every entry whose key starts with prefix and
	// reports how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Count reports live entries under prefix.
	Count(ctx context.Context, prefix string) (int, error)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryBackend keeps entries in a map guarded by an RWMutex. Expired
// entries are dropped lazily on read and in bulk by Sweep.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Tests use this to control expiry.
func (b *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	b.now = now
	return b
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	now := b.now()
	b.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if entry.expired(now) {
		b.mu.Lock()
		if cur, ok := b.entries[key]; ok && cur.expired(b.now()) {
			delete(b.entries, key)
		}
		b.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = b.now().Add(ttl)
	}

	b.mu.Lock()
	b.entries[key] = entry
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key := range b.entries {
		if strings.HasPrefix(key, prefix) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (b *MemoryBackend) Count(ctx context.Context, prefix string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := b.now()
	count := 0
	for key, entry := range b.entries {
		if strings.HasPrefix(key, prefix) && !entry.expired(now) {
			count++
		}
	}
	return count, nil
}

// Sweep removes expired entries in bulk and reports how many it
// dropped. The cron scheduler calls this periodically so long-idle
// caches do not accumulate dead entries.
func (b *MemoryBackend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for key, entry := range b.entries {
		if entry.expired(now) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

// RedisBackend stores entries under a shared namespace and relies on
// Redis's native expiry for TTL handling.
type RedisBackend struct {
	rdb       *redis.Client
	namespace string
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb, namespace: "ragcache:"}
}

func (b *RedisBackend) key(key string) string { return b.namespace + key }

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := b.rdb.Get(ctx, b.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.rdb.Set(ctx, b.key(key), value, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, b.key(key)).Err()
}

func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	iter := b.rdb.Scan(ctx, 0, b.key(prefix)+"*", 100).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := b.rdb.Del(ctx, batch...).Err(); err != nil {
				return removed, err
			}
			removed += len(batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	if len(batch) > 0 {
		if err := b.rdb.Del(ctx, batch...).Err(); err != nil {
			return removed, err
		}
		removed += len(batch)
	}
	return removed, nil
}

func (b *RedisBackend) Count(ctx context.Context, prefix string) (int, error) {
	count := 0
	iter := b.rdb.Scan(ctx, 0, b.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
