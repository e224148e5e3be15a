package shardcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.skia.org/infra/go/now"
)

func TestMemLRUCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemLRUCache(10)

	_, ok := c.Get(ctx, "missing")
	require.False(t, ok)

	c.Set(ctx, "k", []byte("v"), 0)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)

	// Overwrites replace in place.
	c.Set(ctx, "k", []byte("v2"), 0)
	got, _ = c.Get(ctx, "k")
	require.Equal(t, []byte("v2"), got)
	require.Equal(t, 1, c.Len())
}

func TestMemLRUCache_TTLExpiry(t *testing.T) {
	start := time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := now.TimeTravelingContext(context.Background(), start)
	c := NewMemLRUCache(10)

	c.Set(ctx, "short", []byte("a"), time.Hour)
	c.Set(ctx, "forever", []byte("b"), 0)

	ctx.SetTime(start.Add(2 * time.Hour))
	_, ok := c.Get(ctx, "short")
	require.False(t, ok)
	got, ok := c.Get(ctx, "forever")
	require.True(t, ok)
	require.Equal(t, []byte("b"), got)

	// The expired entry was evicted on access.
	require.Equal(t, 1, c.Len())
}

func TestMemLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemLRUCache(2)

	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	c.Set(ctx, "c", []byte("3"), 0)
	require.Equal(t, 2, c.Len())
	_, ok = c.Get(ctx, "b")
	require.False(t, ok)
	_, ok = c.Get(ctx, "a")
	require.True(t, ok)
	_, ok = c.Get(ctx, "c")
	require.True(t, ok)
}
