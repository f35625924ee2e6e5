package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache() (*MemoryCache, *time.Time) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryCache_SetGetExpire(t *testing.T) {
	c, now := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 5*time.Second))
	val, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), val)

	*now = now.Add(5 * time.Second)
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache_NoTTLNeverExpires(t *testing.T) {
	c, now := newTestMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	*now = now.Add(24 * time.Hour)
	_, found, _ := c.Get(ctx, "k")
	assert.True(t, found)
}

func TestMemoryCache_Delete(t *testing.T) {
	c, _ := newTestMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	_, found, _ := c.Get(ctx, "k")
	assert.False(t, found)
	assert.NoError(t, c.Ping(ctx))
}

func TestMemoryCache_IncrWithExpiry(t *testing.T) {
	c, now := newTestMemoryCache()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrWithExpiry(ctx, "rl", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		*now = now.Add(10 * time.Second)
	}

	*now = now.Add(30 * time.Second)
	got, err := c.IncrWithExpiry(ctx, "rl", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestMemoryCache_ReturnsCopy(t *testing.T) {
	c, _ := newTestMemoryCache()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	val, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), val)
}
