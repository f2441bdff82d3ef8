package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"newsfeed/backend/internal/cache"
	"newsfeed/backend/internal/config"
)

func newTestCache(t *testing.T) (*cache.LinkCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewLinkCache(context.Background(), config.RedisConfig{Addr: mr.Addr(), LinkTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLinkCache_AddAndKnown(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, 1, "https://example.com/a", "https://example.com/b"))

	known, err := c.Known(ctx, 1, []string{"https://example.com/a", "https://example.com/c"})
	require.NoError(t, err)
	require.True(t, known["https://example.com/a"])
	require.False(t, known["https://example.com/c"])

	// Feeds are isolated.
	known, err = c.Known(ctx, 2, []string{"https://example.com/a"})
	require.NoError(t, err)
	require.False(t, known["https://example.com/a"])

	require.Equal(t, time.Hour, mr.TTL("newsfeed:feed:1:links"))
}

func TestLinkCache_EmptyInput(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, 1))
	known, err := c.Known(ctx, 1, nil)
	require.NoError(t, err)
	require.Empty(t, known)
}

func TestLinkCache_Expiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, 1, "https://example.com/a"))
	mr.FastForward(2 * time.Hour)

	known, err := c.Known(ctx, 1, []string{"https://example.com/a"})
	require.NoError(t, err)
	require.False(t, known["https://example.com/a"])
}

func TestNewLinkCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := cache.NewLinkCache(context.Background(), config.RedisConfig{Addr: addr})
	require.Error(t, err)
}

func TestLinkCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Known(context.Background(), 1, []string{"https://example.com/a"})
	require.Error(t, err)
}
