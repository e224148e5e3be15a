package shardcache

import (
	"context"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"go.skia.org/infra/go/now"
)

// lruEntry wraps a cached value with its expiry; the LRU itself has no
// notion of TTL.
type lruEntry struct {
	value   []byte
	expires time.Time // zero means never
}

// MemLRUCache is an in-process Cache on top of an LRU with a fixed maximum
// number of entries.
type MemLRUCache struct {
	mtx   sync.Mutex
	cache *lru.Cache
}

// NewMemLRUCache returns a Cache holding at most maxEntries values.
func NewMemLRUCache(maxEntries int) *MemLRUCache {
	return &MemLRUCache{
		cache: lru.New(maxEntries),
	}
}

// Get implements the Cache interface. Expired entries are evicted on
// access.
func (m *MemLRUCache) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(lruEntry)
	if !entry.expires.IsZero() && entry.expires.Before(now.Now(ctx)) {
		m.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set implements the Cache interface.
func (m *MemLRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = now.Now(ctx).Add(ttl)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.cache.Add(key, lruEntry{value: value, expires: expires})
}

// Len returns the current number of cached entries.
func (m *MemLRUCache) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.cache.Len()
}

var _ Cache = (*MemLRUCache)(nil)
