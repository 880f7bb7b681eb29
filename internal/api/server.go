// SPDX-License-Identifier: MIT

// Package api provides the HTTP control surface for the simulation daemon.
package api

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/latticelabs/znsim/internal/cache"
	"github.com/latticelabs/znsim/internal/config"
	"github.com/latticelabs/znsim/internal/health"
	"github.com/latticelabs/znsim/internal/results"
	"github.com/latticelabs/znsim/internal/sim"
	"github.com/latticelabs/znsim/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg     config.AppConfig
	manager *sim.Manager
	state   store.StateStore
	results *results.Store
	cache   cache.Cache
	healthM *health.Manager

	// summaries and fits are computed once per (run, revision) even under
	// concurrent requests.
	flight singleflight.Group

	trustedNets []*net.IPNet
}

// NewServer wires the API server. The health manager is optional; without it
// /healthz and /readyz report a bare healthy process.
func NewServer(cfg config.AppConfig, manager *sim.Manager, state store.StateStore, res *results.Store, c cache.Cache, hm *health.Manager) *Server {
	if hm == nil {
		hm = health.NewManager(cfg.Version)
	}
	return &Server{
		cfg:         cfg,
		manager:     manager,
		state:       state,
		results:     res,
		cache:       c,
		healthM:     hm,
		trustedNets: parseTrustedProxies(cfg.TrustedProxies),
	}
}

// Router builds the chi router with the full middleware stack and all routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(recoveryMiddleware)
	if s.cfg.RateLimit.Enabled {
		r.Use(rateLimitMiddleware(s.cfg.RateLimit.RequestsPerMinute, s.clientIP))
	}

	r.Get("/healthz", s.healthM.ServeHealth)
	r.Get("/readyz", s.healthM.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			// Submissions enqueue real compute work, so they get their own,
			// tighter per-client budget on top of the global limiter.
			var submit chi.Router = r
			if s.cfg.RateLimit.Enabled && s.cfg.RateLimit.SubmitPerMinute > 0 {
				submit = r.With(rateLimitMiddleware(s.cfg.RateLimit.SubmitPerMinute, s.clientIP))
			}
			submit.Post("/", s.handleCreateRun)
			r.Get("/", s.handleListRuns)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
				r.Post("/cancel", s.handleCancelRun)
				r.Get("/measurements", s.handleMeasurements)
				r.Get("/summary", s.handleSummary)
				r.Get("/fit", s.handleFit)
				r.Get("/export.csv", s.handleExportCSV)
				r.Get("/animation.gif", s.handleAnimation)
			})
		})
	})

	return r
}

// Handler returns the router, wrapped with OpenTelemetry instrumentation
// when telemetry is enabled.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	if s.cfg.Telemetry.Enabled {
		h = otelhttp.NewHandler(h, "znsim-api")
	}
	return h
}

// HTTPServer builds an *http.Server with sane timeouts around the handler.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // GIF rendering of large runs
		IdleTimeout:       2 * time.Minute,
	}
}
