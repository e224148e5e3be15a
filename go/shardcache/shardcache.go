// Package shardcache provides the optional cache consulted by the engine
// for historical hourly shards. A shard is cacheable only once its hour has
// fully passed, so cached entries never contain partial data.
package shardcache

import (
	"context"
	"time"
)

// Cache is a best-effort byte cache with per-entry TTL. Implementations
// must be safe for concurrent use and must treat failures as misses;
// neither Get nor Set returns an error.
type Cache interface {
	// Get returns the cached value for key, or ok == false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set stores value under key for at most ttl. A ttl of zero means no
	// expiry beyond the implementation's own eviction.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}
