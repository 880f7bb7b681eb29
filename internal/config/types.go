// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with the precedence
// ENV > file > defaults. YAML files are parsed strictly: unknown keys
// are rejected so typos fail fast instead of being silently ignored.
package config

import "time"

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version string

	// Listen is the HTTP bind address, e.g. ":8080".
	Listen string
	// DataDir holds the run state store (badger) and export scratch space.
	DataDir string
	// ResultsPath is the SQLite database file for measurement series.
	ResultsPath string

	LogLevel string

	Simulation SimulationConfig
	Cache      CacheConfig
	RateLimit  RateLimitConfig
	Telemetry  TelemetryConfig

	// TrustedProxies are CIDRs whose X-Forwarded-For headers are honoured.
	TrustedProxies []string

	ShutdownTimeout time.Duration
}

// SimulationConfig bounds the run scheduler.
type SimulationConfig struct {
	// Workers is the number of runs executed concurrently.
	Workers int
	// QueueSize bounds pending runs; submissions beyond it are rejected.
	QueueSize int
	// StoreBackend selects the run state store: "badger" or "memory".
	StoreBackend string
	// MeasurementBatchSize is the number of measurements flushed to the
	// results store per write.
	MeasurementBatchSize int
	// SnapshotsPerSecond throttles lattice snapshot persistence per run.
	SnapshotsPerSecond float64
	// IdempotencyTTL is how long submission idempotency keys are remembered.
	IdempotencyTTL time.Duration
}

// CacheConfig selects and tunes the summary/fit cache.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// TTL is the lifetime of cached summaries.
	TTL time.Duration
	// CleanupInterval is the memory backend janitor period.
	CleanupInterval time.Duration
}

// RateLimitConfig tunes the per-client API rate limiter. Run submissions get
// their own, tighter budget since each one enqueues real compute work.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	SubmitPerMinute   int
}

// TelemetryConfig tunes OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	ExporterType string
	Endpoint     string
	SamplingRate float64
	Environment  string
}

// FileConfig is the YAML file schema. All fields are pointers so that
// absence can be distinguished from the zero value when merging.
type FileConfig struct {
	Listen      *string `yaml:"listen"`
	DataDir     *string `yaml:"data_dir"`
	ResultsPath *string `yaml:"results_path"`
	LogLevel    *string `yaml:"log_level"`

	Simulation *FileSimulationConfig `yaml:"simulation"`
	Cache      *FileCacheConfig      `yaml:"cache"`
	RateLimit  *FileRateLimitConfig  `yaml:"rate_limit"`
	Telemetry  *FileTelemetryConfig  `yaml:"telemetry"`

	TrustedProxies  []string       `yaml:"trusted_proxies"`
	ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`
}

// FileSimulationConfig mirrors SimulationConfig for YAML.
type FileSimulationConfig struct {
	Workers              *int           `yaml:"workers"`
	QueueSize            *int           `yaml:"queue_size"`
	StoreBackend         *string        `yaml:"store_backend"`
	MeasurementBatchSize *int           `yaml:"measurement_batch_size"`
	SnapshotsPerSecond   *float64       `yaml:"snapshots_per_second"`
	IdempotencyTTL       *time.Duration `yaml:"idempotency_ttl"`
}

// FileCacheConfig mirrors CacheConfig for YAML.
type FileCacheConfig struct {
	Backend         *string        `yaml:"backend"`
	RedisAddr       *string        `yaml:"redis_addr"`
	RedisPassword   *string        `yaml:"redis_password"`
	RedisDB         *int           `yaml:"redis_db"`
	TTL             *time.Duration `yaml:"ttl"`
	CleanupInterval *time.Duration `yaml:"cleanup_interval"`
}

// FileRateLimitConfig mirrors RateLimitConfig for YAML.
type FileRateLimitConfig struct {
	Enabled           *bool `yaml:"enabled"`
	RequestsPerMinute *int  `yaml:"requests_per_minute"`
	SubmitPerMinute   *int  `yaml:"submit_per_minute"`
}

// FileTelemetryConfig mirrors TelemetryConfig for YAML.
type FileTelemetryConfig struct {
	Enabled      *bool    `yaml:"enabled"`
	ExporterType *string  `yaml:"exporter_type"`
	Endpoint     *string  `yaml:"endpoint"`
	SamplingRate *float64 `yaml:"sampling_rate"`
	Environment  *string  `yaml:"environment"`
}
