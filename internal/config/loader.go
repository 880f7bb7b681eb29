// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration with the precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a configuration loader. configPath may be empty for
// ENV-only configuration.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration. The order is strict: defaults, then the
// file (parsed strictly), then environment overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	mergeEnvConfig(&cfg)

	cfg.Version = l.version

	// DataDir must be absolute so relative invocations do not scatter state.
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.ResultsPath != "" {
		if abs, err := filepath.Abs(cfg.ResultsPath); err == nil {
			cfg.ResultsPath = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		Listen:      ":8080",
		DataDir:     "./data",
		ResultsPath: "./data/results.db",
		LogLevel:    "info",
		Simulation: SimulationConfig{
			Workers:              2,
			QueueSize:            32,
			StoreBackend:         "badger",
			MeasurementBatchSize: 100,
			SnapshotsPerSecond:   4,
			IdempotencyTTL:       24 * time.Hour,
		},
		Cache: CacheConfig{
			Backend:         "memory",
			RedisAddr:       "localhost:6379",
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			SubmitPerMinute:   20,
		},
		Telemetry: TelemetryConfig{
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "development",
		},
		ShutdownTimeout: 15 * time.Second,
	}
}

// loadFile parses a YAML config file in strict mode. Unknown fields are a
// fatal error to prevent silent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- config paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Reject multiple documents or trailing content.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	if f == nil {
		return
	}
	setString(&cfg.Listen, f.Listen)
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.ResultsPath, f.ResultsPath)
	setString(&cfg.LogLevel, f.LogLevel)
	if len(f.TrustedProxies) > 0 {
		cfg.TrustedProxies = append([]string(nil), f.TrustedProxies...)
	}
	setDuration(&cfg.ShutdownTimeout, f.ShutdownTimeout)

	if s := f.Simulation; s != nil {
		setInt(&cfg.Simulation.Workers, s.Workers)
		setInt(&cfg.Simulation.QueueSize, s.QueueSize)
		setString(&cfg.Simulation.StoreBackend, s.StoreBackend)
		setInt(&cfg.Simulation.MeasurementBatchSize, s.MeasurementBatchSize)
		setFloat(&cfg.Simulation.SnapshotsPerSecond, s.SnapshotsPerSecond)
		setDuration(&cfg.Simulation.IdempotencyTTL, s.IdempotencyTTL)
	}
	if c := f.Cache; c != nil {
		setString(&cfg.Cache.Backend, c.Backend)
		setString(&cfg.Cache.RedisAddr, c.RedisAddr)
		setString(&cfg.Cache.RedisPassword, c.RedisPassword)
		setInt(&cfg.Cache.RedisDB, c.RedisDB)
		setDuration(&cfg.Cache.TTL, c.TTL)
		setDuration(&cfg.Cache.CleanupInterval, c.CleanupInterval)
	}
	if r := f.RateLimit; r != nil {
		setBool(&cfg.RateLimit.Enabled, r.Enabled)
		setInt(&cfg.RateLimit.RequestsPerMinute, r.RequestsPerMinute)
		setInt(&cfg.RateLimit.SubmitPerMinute, r.SubmitPerMinute)
	}
	if t := f.Telemetry; t != nil {
		setBool(&cfg.Telemetry.Enabled, t.Enabled)
		setString(&cfg.Telemetry.ExporterType, t.ExporterType)
		setString(&cfg.Telemetry.Endpoint, t.Endpoint)
		setFloat(&cfg.Telemetry.SamplingRate, t.SamplingRate)
		setString(&cfg.Telemetry.Environment, t.Environment)
	}
}

// mergeEnvConfig applies environment overrides. ENV has the highest priority.
func mergeEnvConfig(cfg *AppConfig) {
	cfg.Listen = ParseString("ZNSIM_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("ZNSIM_DATA_DIR", cfg.DataDir)
	cfg.ResultsPath = ParseString("ZNSIM_RESULTS_PATH", cfg.ResultsPath)
	cfg.LogLevel = ParseString("ZNSIM_LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownTimeout = ParseDuration("ZNSIM_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	if v, ok := os.LookupEnv("ZNSIM_TRUSTED_PROXIES"); ok && v != "" {
		parts := strings.Split(v, ",")
		proxies := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				proxies = append(proxies, p)
			}
		}
		cfg.TrustedProxies = proxies
	}

	cfg.Simulation.Workers = ParseInt("ZNSIM_WORKERS", cfg.Simulation.Workers)
	cfg.Simulation.QueueSize = ParseInt("ZNSIM_QUEUE_SIZE", cfg.Simulation.QueueSize)
	cfg.Simulation.StoreBackend = ParseString("ZNSIM_STORE_BACKEND", cfg.Simulation.StoreBackend)
	cfg.Simulation.MeasurementBatchSize = ParseInt("ZNSIM_MEASUREMENT_BATCH_SIZE", cfg.Simulation.MeasurementBatchSize)
	cfg.Simulation.SnapshotsPerSecond = ParseFloat("ZNSIM_SNAPSHOTS_PER_SECOND", cfg.Simulation.SnapshotsPerSecond)
	cfg.Simulation.IdempotencyTTL = ParseDuration("ZNSIM_IDEMPOTENCY_TTL", cfg.Simulation.IdempotencyTTL)

	cfg.Cache.Backend = ParseString("ZNSIM_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.RedisAddr = ParseString("ZNSIM_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString("ZNSIM_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt("ZNSIM_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.TTL = ParseDuration("ZNSIM_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.CleanupInterval = ParseDuration("ZNSIM_CACHE_CLEANUP_INTERVAL", cfg.Cache.CleanupInterval)

	cfg.RateLimit.Enabled = ParseBool("ZNSIM_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = ParseInt("ZNSIM_RATE_LIMIT_RPM", cfg.RateLimit.RequestsPerMinute)
	cfg.RateLimit.SubmitPerMinute = ParseInt("ZNSIM_RATE_LIMIT_SUBMIT_RPM", cfg.RateLimit.SubmitPerMinute)

	cfg.Telemetry.Enabled = ParseBool("ZNSIM_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = ParseString("ZNSIM_OTEL_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = ParseString("ZNSIM_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat("ZNSIM_OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = ParseString("ZNSIM_OTEL_ENVIRONMENT", cfg.Telemetry.Environment)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *time.Duration) {
	if src != nil {
		*dst = *src
	}
}
