package analytics

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedisAddr returns the Redis address used by cache tests.
func testRedisAddr() string {
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// setupTestCache connects to Redis or skips the test.
func setupTestCache(t *testing.T, prefix string) *RedisCache {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr()})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr(), err)
	}

	cache := NewRedisCache(client, prefix, time.Minute)
	require.NoError(t, cache.DeletePattern(ctx, "*"))
	t.Cleanup(func() {
		_ = cache.DeletePattern(context.Background(), "*")
		_ = cache.Close()
	})
	return cache
}

func TestRedisCache_GetSet(t *testing.T) {
	cache := setupTestCache(t, "test:analytics:getset:")
	ctx := context.Background()

	var got map[string]int
	found, err := cache.Get(ctx, "dashboard:30:2025-06-15", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "dashboard:30:2025-06-15", map[string]int{"total": 4}))

	found, err = cache.Get(ctx, "dashboard:30:2025-06-15", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4, got["total"])

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Sets)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
}

func TestRedisCache_DeletePattern(t *testing.T) {
	cache := setupTestCache(t, "test:analytics:pattern:")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "dashboard:7:2025-06-15", 1))
	require.NoError(t, cache.Set(ctx, "dashboard:30:2025-06-15", 2))
	require.NoError(t, cache.Set(ctx, "other", 3))

	require.NoError(t, cache.DeletePattern(ctx, "dashboard:*"))

	var v int
	found, err := cache.Get(ctx, "dashboard:7:2025-06-15", &v)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = cache.Get(ctx, "other", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, v)
}

func TestNoCache(t *testing.T) {
	var c DashboardCache = noCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1))
	var v int
	found, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.DeletePattern(ctx, "*"))
	assert.NoError(t, c.Ping(ctx))
}
