// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a RedisCache against an in-process miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := &RedisCache{
		client: client,
		logger: zerolog.Nop(),
	}
	t.Cleanup(func() {
		_ = c.Close()
		mr.Close()
	})
	return mr, c
}

func TestRedisSetGet(t *testing.T) {
	_, c := setupMiniRedis(t)

	c.Set("summary:r1:1", []byte(`{"count":5}`), 5*time.Minute)

	val, found := c.Get("summary:r1:1")
	require.True(t, found)
	assert.Equal(t, []byte(`{"count":5}`), val)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Sets)
	assert.EqualValues(t, 1, stats.Hits)
}

func TestRedisGetMissing(t *testing.T) {
	_, c := setupMiniRedis(t)

	_, found := c.Get("nonexistent")
	assert.False(t, found)
	assert.EqualValues(t, 1, c.Stats().Misses)
}

func TestRedisTTLExpiry(t *testing.T) {
	mr, c := setupMiniRedis(t)

	c.Set("k", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)

	_, found := c.Get("k")
	assert.False(t, found)
}

func TestRedisDeleteClear(t *testing.T) {
	_, c := setupMiniRedis(t)

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)

	c.Delete("a")
	_, found := c.Get("a")
	assert.False(t, found)

	c.Clear()
	assert.Zero(t, c.Stats().CurrentSize)
}

func TestRedisHealthCheck(t *testing.T) {
	mr, c := setupMiniRedis(t)

	assert.NoError(t, c.HealthCheck(t.Context()))

	mr.Close()
	assert.Error(t, c.HealthCheck(t.Context()))
}
