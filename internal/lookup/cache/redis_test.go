package cache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/redis"
)

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("GZ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GZ_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := pkgredis.NewClient(ctx, config.RedisConfig{Addr: addr, DB: 15, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedis(client, 0)
	require.NoError(t, c.Invalidate(ctx))

	_, ok := c.Get(ctx, "FULL_NAME_ND_RO:paris")
	assert.False(t, ok)

	c.Put(ctx, "FULL_NAME_ND_RO:paris", sample("a"))
	got, ok := c.Get(ctx, "FULL_NAME_ND_RO:paris")
	require.True(t, ok)
	assert.Equal(t, sample("a"), got)

	c.Put(ctx, "FEATURE_NAME:nowhere", nil)
	got, ok = c.Get(ctx, "FEATURE_NAME:nowhere")
	require.True(t, ok)
	assert.Empty(t, got)

	require.NoError(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx, "FULL_NAME_ND_RO:paris")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, config.CacheRedis, stats.Backend)
	assert.Positive(t, stats.Hits)
}
