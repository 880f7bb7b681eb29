// SPDX-License-Identifier: MIT

// Command daemon runs the znsim simulation service: a Metropolis Monte Carlo
// engine for the Zn clock model behind an HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/latticelabs/znsim/internal/api"
	"github.com/latticelabs/znsim/internal/cache"
	"github.com/latticelabs/znsim/internal/config"
	"github.com/latticelabs/znsim/internal/health"
	"github.com/latticelabs/znsim/internal/log"
	"github.com/latticelabs/znsim/internal/results"
	"github.com/latticelabs/znsim/internal/sim"
	"github.com/latticelabs/znsim/internal/store"
	"github.com/latticelabs/znsim/internal/telemetry"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	// Safe defaults until the configuration is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "znsim",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit via --config, otherwise ${ZNSIM_DATA_DIR}/znsim.yaml
	// when that file exists.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("ZNSIM_DATA_DIR", "./data"))
		autoPath := filepath.Join(dataDir, "znsim.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
		return 1
	}

	if err := log.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level, keeping default")
	}

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		logger.Error().Err(err).Str("data_dir", cfg.DataDir).Msg("failed to create data directory")
		return 1
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Listen).
		Str("store_backend", cfg.Simulation.StoreBackend).
		Int("workers", cfg.Simulation.Workers).
		Msg("starting znsim")

	// Telemetry
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "znsim",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "telemetry.init_failed").Msg("failed to initialise telemetry")
		return 1
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	// Stores
	stateStore, err := store.Open(cfg.Simulation.StoreBackend, filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error().Err(err).Str("event", "store.open_failed").Msg("failed to open state store")
		return 1
	}
	defer func() { _ = stateStore.Close() }()

	resultsStore, err := results.NewStore(cfg.ResultsPath)
	if err != nil {
		logger.Error().Err(err).Str("event", "results.open_failed").Msg("failed to open results store")
		return 1
	}
	defer func() { _ = resultsStore.Close() }()

	// Cache
	summaryCache, err := buildCache(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("event", "cache.init_failed").Msg("failed to initialise cache")
		return 1
	}
	defer func() { _ = summaryCache.Close() }()

	// Run manager
	manager := sim.NewManager(sim.Config{
		Workers:              cfg.Simulation.Workers,
		QueueSize:            cfg.Simulation.QueueSize,
		MeasurementBatchSize: cfg.Simulation.MeasurementBatchSize,
		SnapshotsPerSecond:   cfg.Simulation.SnapshotsPerSecond,
		IdempotencyTTL:       cfg.Simulation.IdempotencyTTL,
	}, stateStore, resultsStore)
	manager.Start(ctx)

	// Readiness
	healthManager := health.NewManager(version)
	healthManager.RegisterChecker(health.CheckerFunc{
		CheckerName: "results",
		Fn: func(ctx context.Context) health.CheckResult {
			if err := resultsStore.Ping(ctx); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		},
	})
	if rc, ok := summaryCache.(*cache.RedisCache); ok {
		healthManager.RegisterChecker(health.CheckerFunc{
			CheckerName: "cache",
			Fn: func(ctx context.Context) health.CheckResult {
				if err := rc.HealthCheck(ctx); err != nil {
					// The cache is an accelerator, not a dependency.
					return health.CheckResult{Status: health.StatusDegraded, Error: err.Error()}
				}
				return health.CheckResult{Status: health.StatusHealthy}
			},
		})
	}

	// Config hot reload. Reloads flow into the running components; settings
	// that need a restart (listen address, store backends, worker count) keep
	// their startup values.
	holder := config.NewHolder(cfg, loader, effectiveConfigPath)
	reloads := make(chan config.AppConfig, 1)
	holder.RegisterListener(reloads)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg := <-reloads:
				applyConfigReload(newCfg, manager, logger)
			}
		}
	}()
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Str("event", "config.watcher_failed").Msg("config watcher unavailable")
	}
	defer holder.Stop()

	// HTTP server
	server := api.NewServer(cfg, manager, stateStore, resultsStore, summaryCache, healthManager)
	httpServer := server.HTTPServer()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("event", "http.listening").Str("addr", cfg.Listen).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Error().Err(err).Str("event", "http.failed").Msg("HTTP server failed")
		return 1
	case <-ctx.Done():
	}

	logger.Info().Str("event", "shutdown.start").Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("run manager shutdown failed")
	}

	logger.Info().Str("event", "shutdown.complete").Msg("server exiting")
	return 0
}

// applyConfigReload pushes the reloadable subset of a freshly loaded
// configuration into the running daemon: the global log level and the
// scheduler's runtime tunables.
func applyConfigReload(cfg config.AppConfig, manager *sim.Manager, logger zerolog.Logger) {
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("reloaded log level invalid, keeping current")
	}
	manager.ApplyTunables(sim.Tunables{
		MeasurementBatchSize: cfg.Simulation.MeasurementBatchSize,
		SnapshotsPerSecond:   cfg.Simulation.SnapshotsPerSecond,
	})
	logger.Info().
		Str("event", "config.reload_applied").
		Str("log_level", cfg.LogLevel).
		Int("measurement_batch_size", cfg.Simulation.MeasurementBatchSize).
		Float64("snapshots_per_second", cfg.Simulation.SnapshotsPerSecond).
		Msg("applied reloaded configuration")
}

// buildCache selects the summary cache backend. Redis failures fall back to
// the in-memory cache so the daemon still starts without its accelerator.
func buildCache(cfg config.AppConfig, logger zerolog.Logger) (cache.Cache, error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemory(cfg.Cache.CleanupInterval), nil
	}

	c, err := cache.NewRedis(cache.RedisConfig{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("event", "cache.redis_unavailable").
			Str("addr", cfg.Cache.RedisAddr).
			Msg("redis unavailable, falling back to in-memory cache")
		return cache.NewMemory(cfg.Cache.CleanupInterval), nil
	}
	return c, nil
}
