// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"net"
	"strings"
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true,
}

// Validate checks the resolved configuration for internal consistency.
func Validate(cfg AppConfig) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", cfg.Listen, err)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	s := cfg.Simulation
	if s.Workers < 1 {
		return fmt.Errorf("simulation workers must be >= 1 (got %d)", s.Workers)
	}
	if s.QueueSize < 1 {
		return fmt.Errorf("simulation queue_size must be >= 1 (got %d)", s.QueueSize)
	}
	switch s.StoreBackend {
	case "badger", "memory":
	default:
		return fmt.Errorf("unsupported store backend %q (supported: badger, memory)", s.StoreBackend)
	}
	if s.MeasurementBatchSize < 1 {
		return fmt.Errorf("measurement_batch_size must be >= 1 (got %d)", s.MeasurementBatchSize)
	}
	if s.SnapshotsPerSecond <= 0 {
		return fmt.Errorf("snapshots_per_second must be > 0 (got %g)", s.SnapshotsPerSecond)
	}
	if s.IdempotencyTTL <= 0 {
		return fmt.Errorf("idempotency_ttl must be > 0 (got %s)", s.IdempotencyTTL)
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("redis cache backend requires redis_addr")
		}
	default:
		return fmt.Errorf("unsupported cache backend %q (supported: memory, redis)", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be > 0 (got %s)", cfg.Cache.TTL)
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerMinute < 1 {
			return fmt.Errorf("rate limit requests_per_minute must be >= 1 (got %d)", cfg.RateLimit.RequestsPerMinute)
		}
		if cfg.RateLimit.SubmitPerMinute < 1 {
			return fmt.Errorf("rate limit submit_per_minute must be >= 1 (got %d)", cfg.RateLimit.SubmitPerMinute)
		}
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.ExporterType {
		case "grpc", "http":
		default:
			return fmt.Errorf("unsupported telemetry exporter %q (supported: grpc, http)", cfg.Telemetry.ExporterType)
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("telemetry sampling_rate must be in [0,1] (got %g)", cfg.Telemetry.SamplingRate)
		}
	}

	for _, cidr := range cfg.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
	}

	return nil
}
