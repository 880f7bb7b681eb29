// SPDX-License-Identifier: MIT

// Package sim schedules and executes simulation runs on a bounded worker
// pool. Run state lives in the state store, measurement series in the
// results store.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/latticelabs/znsim/internal/log"
	"github.com/latticelabs/znsim/internal/metrics"
	"github.com/latticelabs/znsim/internal/model"
	"github.com/latticelabs/znsim/internal/results"
	"github.com/latticelabs/znsim/internal/store"
)

var (
	// ErrQueueFull is returned when the pending-run queue is at capacity.
	ErrQueueFull = errors.New("sim: run queue full")
	// ErrRunActive is returned when deleting a run that is still executing.
	ErrRunActive = errors.New("sim: run is still active")
	// ErrAlreadyFinished is returned when canceling a terminal run.
	ErrAlreadyFinished = errors.New("sim: run already finished")
	// ErrShuttingDown is returned for submissions during shutdown.
	ErrShuttingDown = errors.New("sim: manager shutting down")
)

// Config bounds the run scheduler.
type Config struct {
	Workers              int
	QueueSize            int
	MeasurementBatchSize int
	SnapshotsPerSecond   float64
	IdempotencyTTL       time.Duration
}

// Tunables are the scheduler settings that can change while the daemon runs,
// e.g. after a config reload. Everything else in Config needs a restart.
type Tunables struct {
	MeasurementBatchSize int
	SnapshotsPerSecond   float64
}

// Manager owns the worker pool and the run lifecycle.
type Manager struct {
	cfg     Config
	state   store.StateStore
	results *results.Store
	logger  zerolog.Logger

	queue chan string // run IDs awaiting a worker

	mu      sync.Mutex
	tun     Tunables
	cancels map[string]context.CancelFunc
	closed  bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewManager creates a run manager. Call Start before submitting runs.
func NewManager(cfg Config, state store.StateStore, res *results.Store) *Manager {
	return &Manager{
		cfg:     cfg,
		state:   state,
		results: res,
		logger:  log.WithComponent("sim"),
		queue:   make(chan string, cfg.QueueSize),
		tun: Tunables{
			MeasurementBatchSize: cfg.MeasurementBatchSize,
			SnapshotsPerSecond:   cfg.SnapshotsPerSecond,
		},
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled or
// Shutdown is called.
func (m *Manager) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	g, gctx := errgroup.WithContext(runCtx)
	m.group = g
	for i := 0; i < m.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			m.workerLoop(gctx, worker)
			return nil
		})
	}

	m.logger.Info().
		Str("event", "sim.started").
		Int("workers", m.cfg.Workers).
		Int("queue_size", m.cfg.QueueSize).
		Msg("run manager started")
}

// Shutdown stops accepting submissions, cancels in-flight runs and waits for
// the workers to drain, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		if m.group != nil {
			_ = m.group.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info().Str("event", "sim.stopped").Msg("run manager stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sim: shutdown timed out: %w", ctx.Err())
	}
}

// Submit validates and enqueues a run. When idemKey is non-empty and was
// seen before, the previously created run is returned with created=false.
func (m *Manager) Submit(ctx context.Context, params model.Params, idemKey string) (run *model.Run, created bool, err error) {
	if err := params.Validate(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, false, ErrShuttingDown
	}

	run = &model.Run{
		ID:        uuid.NewString(),
		Params:    params,
		State:     model.StatePending,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.state.PutRun(ctx, run, idemKey, m.cfg.IdempotencyTTL); err != nil {
		if errors.Is(err, store.ErrIdempotentReplay) {
			existingID, ok, lookupErr := m.state.GetIdempotency(ctx, idemKey)
			if lookupErr != nil || !ok {
				return nil, false, fmt.Errorf("sim: resolve idempotency key: %w", err)
			}
			existing, getErr := m.state.GetRun(ctx, existingID)
			if getErr != nil || existing == nil {
				return nil, false, fmt.Errorf("sim: load idempotent run %s: %w", existingID, getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("sim: persist run: %w", err)
	}

	if err := m.results.RegisterRun(ctx, run.ID, params.LatticeSize, params.States, run.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("sim: register run series: %w", err)
	}

	select {
	case m.queue <- run.ID:
		metrics.QueuedRuns.Inc()
	default:
		// Queue full: roll the record back so a retry is clean.
		_ = m.state.DeleteRun(ctx, run.ID)
		_ = m.results.DeleteRun(ctx, run.ID)
		return nil, false, ErrQueueFull
	}

	m.logger.Info().
		Str("event", "sim.run_submitted").
		Str("run_id", run.ID).
		Int("lattice_size", params.LatticeSize).
		Int("states", params.States).
		Int("sweeps", params.Sweeps).
		Msg("run submitted")

	return run, true, nil
}

// ApplyTunables swaps the runtime tunables. Runs picked up after the call use
// the new values; in-flight runs keep the ones they started with.
func (m *Manager) ApplyTunables(t Tunables) {
	if t.MeasurementBatchSize < 1 || t.SnapshotsPerSecond <= 0 {
		m.logger.Warn().
			Str("event", "sim.tunables_rejected").
			Int("measurement_batch_size", t.MeasurementBatchSize).
			Float64("snapshots_per_second", t.SnapshotsPerSecond).
			Msg("ignoring invalid tunables")
		return
	}

	m.mu.Lock()
	m.tun = t
	m.mu.Unlock()

	m.logger.Info().
		Str("event", "sim.tunables_updated").
		Int("measurement_batch_size", t.MeasurementBatchSize).
		Float64("snapshots_per_second", t.SnapshotsPerSecond).
		Msg("runtime tunables updated")
}

// Tunables returns the currently effective runtime tunables.
func (m *Manager) Tunables() Tunables {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tun
}

// Get returns a run record, or (nil, nil) when absent.
func (m *Manager) Get(ctx context.Context, id string) (*model.Run, error) {
	return m.state.GetRun(ctx, id)
}

// List returns all run records.
func (m *Manager) List(ctx context.Context) ([]*model.Run, error) {
	return m.state.ListRuns(ctx)
}

// Cancel stops a pending or running run. Pending runs are marked canceled in
// place; running runs get their context canceled and the worker finalises
// the record.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	run, err := m.state.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return store.ErrRunNotFound
	}
	if run.State.Terminal() {
		return ErrAlreadyFinished
	}

	m.mu.Lock()
	cancel, running := m.cancels[id]
	m.mu.Unlock()

	if running {
		cancel()
		m.logger.Info().Str("event", "sim.run_cancel_requested").Str("run_id", id).Msg("canceling running run")
		return nil
	}

	// Pending: flip the record now; the worker skips non-pending runs.
	_, err = m.state.UpdateRun(ctx, id, func(r *model.Run) error {
		if r.State.Terminal() {
			return ErrAlreadyFinished
		}
		now := time.Now().UTC()
		r.State = model.StateCanceled
		r.FinishedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	metrics.IncRunFinished(string(model.StateCanceled))
	m.logger.Info().Str("event", "sim.run_canceled").Str("run_id", id).Msg("pending run canceled")
	return nil
}

// Delete removes a terminal run with its snapshots and measurement series.
func (m *Manager) Delete(ctx context.Context, id string) error {
	run, err := m.state.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return store.ErrRunNotFound
	}
	if !run.State.Terminal() {
		return ErrRunActive
	}

	if err := m.state.DeleteRun(ctx, id); err != nil {
		return fmt.Errorf("sim: delete run state: %w", err)
	}
	if err := m.results.DeleteRun(ctx, id); err != nil {
		return fmt.Errorf("sim: delete run series: %w", err)
	}

	m.logger.Info().Str("event", "sim.run_deleted").Str("run_id", id).Msg("run deleted")
	return nil
}

func (m *Manager) workerLoop(ctx context.Context, worker int) {
	logger := m.logger.With().Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-m.queue:
			if !ok {
				return
			}
			metrics.QueuedRuns.Dec()
			if err := m.execute(ctx, id); err != nil {
				logger.Error().
					Err(err).
					Str("event", "sim.run_error").
					Str("run_id", id).
					Msg("run execution failed")
			}
		}
	}
}

func (m *Manager) registerCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()
}

func (m *Manager) unregisterCancel(id string) {
	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()
}
