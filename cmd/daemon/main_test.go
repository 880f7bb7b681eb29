// SPDX-License-Identifier: MIT

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticelabs/znsim/internal/config"
	"github.com/latticelabs/znsim/internal/log"
	"github.com/latticelabs/znsim/internal/results"
	"github.com/latticelabs/znsim/internal/sim"
	"github.com/latticelabs/znsim/internal/store"
)

func TestBuildCacheMemory(t *testing.T) {
	cfg := config.AppConfig{
		Cache: config.CacheConfig{Backend: "memory", CleanupInterval: time.Minute},
	}
	c, err := buildCache(cfg, log.WithComponent("test"))
	require.NoError(t, err)
	require.NotNil(t, c)
	defer func() { _ = c.Close() }()

	c.Set("k", []byte("v"), time.Minute)
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestBuildCacheRedisFallback(t *testing.T) {
	cfg := config.AppConfig{
		Cache: config.CacheConfig{
			Backend:         "redis",
			RedisAddr:       "127.0.0.1:1", // nothing listens here
			CleanupInterval: time.Minute,
		},
	}
	c, err := buildCache(cfg, log.WithComponent("test"))
	require.NoError(t, err)
	require.NotNil(t, c)
	defer func() { _ = c.Close() }()

	// Fallback cache still works.
	c.Set("k", []byte("v"), time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestApplyConfigReloadUpdatesTunables(t *testing.T) {
	st := store.NewMemory()
	res, err := results.NewStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = res.Close()
		_ = st.Close()
	})

	manager := sim.NewManager(sim.Config{
		Workers:              1,
		QueueSize:            1,
		MeasurementBatchSize: 100,
		SnapshotsPerSecond:   4,
		IdempotencyTTL:       time.Hour,
	}, st, res)

	cfg := config.AppConfig{
		LogLevel: "info",
		Simulation: config.SimulationConfig{
			MeasurementBatchSize: 25,
			SnapshotsPerSecond:   8,
		},
	}
	applyConfigReload(cfg, manager, log.WithComponent("test"))

	got := manager.Tunables()
	assert.Equal(t, 25, got.MeasurementBatchSize)
	assert.Equal(t, 8.0, got.SnapshotsPerSecond)
}

func TestHealthcheckCLIRejectsBadStatus(t *testing.T) {
	// No server on this port: network failure exits non-zero.
	code := runHealthcheckCLI([]string{"-port", "1", "-timeout", "100ms"})
	assert.Equal(t, 1, code)
}
