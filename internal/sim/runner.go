// SPDX-License-Identifier: MIT

package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/latticelabs/znsim/internal/engine"
	"github.com/latticelabs/znsim/internal/lattice"
	"github.com/latticelabs/znsim/internal/metrics"
	"github.com/latticelabs/znsim/internal/model"
	"github.com/latticelabs/znsim/internal/observables"
	"github.com/latticelabs/znsim/internal/store"
)

// execute runs a single simulation to completion, cancellation or failure.
func (m *Manager) execute(ctx context.Context, id string) error {
	run, err := m.state.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil || run.State != model.StatePending {
		// Canceled or deleted while queued.
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.registerCancel(id, cancel)
	defer m.unregisterCancel(id)

	if _, err := m.state.UpdateRun(ctx, id, func(r *model.Run) error {
		now := time.Now().UTC()
		r.State = model.StateRunning
		r.StartedAt = &now
		return nil
	}); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	logger := m.logger.With().Str("run_id", id).Logger()
	logger.Info().
		Str("event", "sim.run_started").
		Int("sweeps", run.Params.Sweeps).
		Msg("run started")

	runErr := m.simulate(runCtx, run)

	state := model.StateCompleted
	errMsg := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		state = model.StateCanceled
	default:
		state = model.StateFailed
		errMsg = runErr.Error()
	}

	// Finalisation must not be short-circuited by the canceled run context.
	if _, err := m.state.UpdateRun(context.WithoutCancel(ctx), id, func(r *model.Run) error {
		now := time.Now().UTC()
		r.State = state
		r.Error = errMsg
		r.FinishedAt = &now
		return nil
	}); err != nil {
		return fmt.Errorf("finalise run: %w", err)
	}
	metrics.IncRunFinished(string(state))

	logger.Info().
		Str("event", "sim.run_finished").
		Str("state", string(state)).
		Msg("run finished")

	if state == model.StateFailed {
		return runErr
	}
	return nil
}

// simulate drives the Metropolis engine and streams measurements and
// snapshots out as the run progresses.
func (m *Manager) simulate(ctx context.Context, run *model.Run) error {
	p := run.Params

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	lat, err := lattice.New(p.LatticeSize, p.States, rng)
	if err != nil {
		return err
	}
	sched, err := p.Schedule.Build()
	if err != nil {
		return err
	}

	eng := engine.New(lat, p.Field, rng)
	// Tunables are pinned at run start; a reload affects the next run.
	tun := m.Tunables()
	limiter := rate.NewLimiter(rate.Limit(tun.SnapshotsPerSecond), 1)

	batch := make([]observables.Measurement, 0, tun.MeasurementBatchSize)
	var lastProposed, lastAccepted uint64
	sweepStart := time.Now()

	flush := func(res engine.SweepResult) error {
		if len(batch) > 0 {
			start := time.Now()
			if err := m.results.AppendMeasurements(ctx, run.ID, batch); err != nil {
				return fmt.Errorf("append measurements: %w", err)
			}
			metrics.ObserveMeasurementBatch(time.Since(start))
			batch = batch[:0]
		}
		_, err := m.state.UpdateRun(ctx, run.ID, func(r *model.Run) error {
			r.Sweep = res.Sweep + 1
			r.Proposed = res.Proposed
			r.Accepted = res.Accepted
			return nil
		})
		return err
	}

	observer := func(res engine.SweepResult) error {
		metrics.ObserveSweep(time.Since(sweepStart))
		sweepStart = time.Now()
		metrics.AddProposals(res.Accepted-lastAccepted,
			(res.Proposed-lastProposed)-(res.Accepted-lastAccepted))
		lastProposed, lastAccepted = res.Proposed, res.Accepted

		if (res.Sweep+1)%p.MeasureEvery == 0 {
			acceptance := float64(res.Accepted) / float64(res.Proposed)
			batch = append(batch, observables.Measurement{
				Sweep:         res.Sweep,
				Temperature:   res.Temperature,
				Energy:        res.Energy,
				Magnetization: float64(res.Magnetization),
				Acceptance:    acceptance,
			})
			if len(batch) >= tun.MeasurementBatchSize {
				if err := flush(res); err != nil {
					return err
				}
			}
		}

		if p.SnapshotEvery > 0 && res.Sweep%p.SnapshotEvery == 0 && limiter.Allow() {
			if err := m.writeSnapshot(ctx, run.ID, res.Sweep, res.Lattice); err != nil {
				return err
			}
		}
		return nil
	}

	if err := eng.Run(ctx, sched, p.Sweeps, observer); err != nil {
		// Persist whatever was collected before the abort.
		flushCtx := context.WithoutCancel(ctx)
		if len(batch) > 0 {
			_ = m.results.AppendMeasurements(flushCtx, run.ID, batch)
		}
		return err
	}

	final := engine.SweepResult{Sweep: p.Sweeps - 1}
	final.Proposed, final.Accepted = eng.Acceptance()
	if err := flush(final); err != nil {
		return err
	}

	// Always capture the final configuration so the animation ends on it.
	if p.SnapshotEvery > 0 {
		if err := m.writeSnapshot(ctx, run.ID, p.Sweeps-1, eng.Lattice()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) writeSnapshot(ctx context.Context, runID string, sweep int, lat *lattice.Lattice) error {
	rec := store.SnapshotRecord{RunID: runID, Sweep: sweep, Snapshot: lat.Snapshot()}
	if err := m.state.PutSnapshot(ctx, rec); err != nil {
		return fmt.Errorf("write snapshot at sweep %d: %w", sweep, err)
	}
	metrics.SnapshotWritesTotal.Inc()
	return nil
}
