package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_SetAndGet(t *testing.T) {
	c := NewMemoryClient(4)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	_, err = c.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryClient(3)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("c"), time.Minute))

	// Touch "a" so "b" becomes the least recently used.
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "d", []byte("d"), time.Minute))

	assert.Equal(t, 3, c.Len())

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss, "least recently used entry should be evicted")

	for _, key := range []string{"a", "c", "d"} {
		_, err := c.Get(ctx, key)
		assert.NoError(t, err, "key %s should survive eviction", key)
	}
}

func TestMemoryClient_TTLExpiry(t *testing.T) {
	c := NewMemoryClient(4)
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 5*time.Minute))

	clock = clock.Add(4 * time.Minute)
	_, err := c.Get(ctx, "short")
	assert.NoError(t, err, "entry within TTL should be served")

	clock = clock.Add(2 * time.Minute)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss, "entry past TTL must never be served")
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped on access")
}

func TestMemoryClient_SetUpdatesInPlace(t *testing.T) {
	c := NewMemoryClient(2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, c.Set(ctx, "k", []byte("v2"), time.Minute))

	assert.Equal(t, 1, c.Len())

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestMemoryClient_Delete(t *testing.T) {
	c := NewMemoryClient(4)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Deleting an absent key is not an error.
	assert.NoError(t, c.Delete(ctx, "k"))
}
