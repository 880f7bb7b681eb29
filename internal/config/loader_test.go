// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "znsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 2, cfg.Simulation.Workers)
	assert.Equal(t, "badger", cfg.Simulation.StoreBackend)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
listen: ":9090"
log_level: debug
simulation:
  workers: 8
  store_backend: memory
cache:
  backend: redis
  redis_addr: "redis:6379"
  ttl: 30s
shutdown_timeout: 5s
`)

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Simulation.Workers)
	assert.Equal(t, "memory", cfg.Simulation.StoreBackend)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)

	// Untouched fields keep their defaults.
	assert.Equal(t, 32, cfg.Simulation.QueueSize)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := writeConfigFile(t, `
listen: ":9090"
simulation:
  workers: 8
`)
	t.Setenv("ZNSIM_LISTEN", ":7070")
	t.Setenv("ZNSIM_WORKERS", "3")
	t.Setenv("ZNSIM_RATE_LIMIT_SUBMIT_RPM", "7")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, 3, cfg.Simulation.Workers)
	assert.Equal(t, 7, cfg.RateLimit.SubmitPerMinute)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, `
listen: ":9090"
bouquet: premium
`)
	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsNonYAMLExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "znsim.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := NewLoader(path, "test").Load()
	assert.Error(t, err)
}

func TestLoadTrustedProxiesFromEnv(t *testing.T) {
	t.Setenv("ZNSIM_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.0/24")

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.0/24"}, cfg.TrustedProxies)
}

func TestValidate(t *testing.T) {
	base := defaults()
	base.DataDir = "/tmp/znsim"
	require.NoError(t, Validate(base))

	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty listen", func(c *AppConfig) { c.Listen = "" }},
		{"bad listen", func(c *AppConfig) { c.Listen = "no-port" }},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "verbose" }},
		{"zero workers", func(c *AppConfig) { c.Simulation.Workers = 0 }},
		{"zero queue", func(c *AppConfig) { c.Simulation.QueueSize = 0 }},
		{"bad store backend", func(c *AppConfig) { c.Simulation.StoreBackend = "postgres" }},
		{"zero batch size", func(c *AppConfig) { c.Simulation.MeasurementBatchSize = 0 }},
		{"zero snapshot rate", func(c *AppConfig) { c.Simulation.SnapshotsPerSecond = 0 }},
		{"bad cache backend", func(c *AppConfig) { c.Cache.Backend = "memcached" }},
		{"redis without addr", func(c *AppConfig) {
			c.Cache.Backend = "redis"
			c.Cache.RedisAddr = ""
		}},
		{"rate limit zero rpm", func(c *AppConfig) { c.RateLimit.RequestsPerMinute = 0 }},
		{"rate limit zero submit rpm", func(c *AppConfig) { c.RateLimit.SubmitPerMinute = 0 }},
		{"bad exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.ExporterType = "udp"
		}},
		{"sampling out of range", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.SamplingRate = 1.5
		}},
		{"bad proxy cidr", func(c *AppConfig) { c.TrustedProxies = []string{"10.0.0.1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
