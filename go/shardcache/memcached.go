package shardcache

import (
	"context"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"go.skia.org/infra/go/sklog"
)

// Memcached is a Cache backed by one or more memcached servers. Errors are
// logged and treated as misses.
type Memcached struct {
	client *memcache.Client
}

// NewMemcached returns a Cache talking to the given "host:port" servers.
func NewMemcached(servers ...string) *Memcached {
	return &Memcached{
		client: memcache.New(servers...),
	}
}

// Get implements the Cache interface.
func (m *Memcached) Get(ctx context.Context, key string) ([]byte, bool) {
	item, err := m.client.Get(key)
	if err == memcache.ErrCacheMiss {
		return nil, false
	} else if err != nil {
		sklog.Warningf("memcached get %q: %s", key, err)
		return nil, false
	}
	return item.Value, true
}

// Set implements the Cache interface.
func (m *Memcached) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	item := &memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl / time.Second),
	}
	if err := m.client.Set(item); err != nil {
		sklog.Warningf("memcached set %q: %s", key, err)
	}
}

var _ Cache = (*Memcached)(nil)
