// SPDX-License-Identifier: MIT

// Package model defines the simulation run records shared between the run
// manager, the stores and the HTTP API.
package model

import (
	"fmt"
	"time"

	"github.com/latticelabs/znsim/internal/engine"
	"github.com/latticelabs/znsim/internal/lattice"
)

// State is the lifecycle state of a run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Schedule kinds accepted in run parameters.
const (
	ScheduleConstant = "constant"
	ScheduleLinear   = "linear"
	ScheduleSteps    = "steps"
)

// ScheduleSpec is the serialisable description of a temperature schedule.
type ScheduleSpec struct {
	Kind         string    `json:"kind"`
	T            float64   `json:"t,omitempty"`            // constant
	From         float64   `json:"from,omitempty"`         // linear
	To           float64   `json:"to,omitempty"`           // linear
	Temperatures []float64 `json:"temperatures,omitempty"` // steps
}

// Build materialises the schedule for the engine.
func (s ScheduleSpec) Build() (engine.Schedule, error) {
	switch s.Kind {
	case ScheduleConstant:
		if s.T <= 0 {
			return nil, fmt.Errorf("model: constant schedule requires positive temperature, got %g", s.T)
		}
		return engine.Constant{T: s.T}, nil
	case ScheduleLinear:
		if s.From <= 0 || s.To <= 0 {
			return nil, fmt.Errorf("model: linear schedule requires positive endpoints, got %g..%g", s.From, s.To)
		}
		return engine.Linear{From: s.From, To: s.To}, nil
	case ScheduleSteps:
		if len(s.Temperatures) == 0 {
			return nil, fmt.Errorf("model: steps schedule requires at least one temperature")
		}
		for i, t := range s.Temperatures {
			if t <= 0 {
				return nil, fmt.Errorf("model: steps schedule temperature %g at index %d not positive", t, i)
			}
		}
		return engine.Steps{Temperatures: s.Temperatures}, nil
	default:
		return nil, fmt.Errorf("model: unknown schedule kind %q", s.Kind)
	}
}

// Params are the caller-supplied knobs of a run.
type Params struct {
	LatticeSize   int          `json:"lattice_size"`
	States        int          `json:"states"`
	Field         float64      `json:"field"`
	Sweeps        int          `json:"sweeps"`
	Seed          uint64       `json:"seed"`
	Schedule      ScheduleSpec `json:"schedule"`
	MeasureEvery  int          `json:"measure_every"`
	SnapshotEvery int          `json:"snapshot_every"` // 0 disables snapshots
}

// DefaultParams mirrors the reference annealing run: a 50×50 two-state
// lattice quenched linearly from T=5.0 to T=0.01 over 500 sweeps.
func DefaultParams() Params {
	return Params{
		LatticeSize:   50,
		States:        2,
		Field:         0,
		Sweeps:        500,
		Schedule:      ScheduleSpec{Kind: ScheduleLinear, From: 5.0, To: 0.01},
		MeasureEvery:  1,
		SnapshotEvery: 10,
	}
}

const maxSweeps = 10_000_000

// Validate checks parameter ranges and the schedule.
func (p Params) Validate() error {
	if p.LatticeSize < lattice.MinSize {
		return fmt.Errorf("model: lattice_size %d below minimum %d", p.LatticeSize, lattice.MinSize)
	}
	if p.States < lattice.MinStates || p.States > lattice.MaxStates {
		return fmt.Errorf("model: states %d outside [%d,%d]", p.States, lattice.MinStates, lattice.MaxStates)
	}
	if p.Sweeps <= 0 || p.Sweeps > maxSweeps {
		return fmt.Errorf("model: sweeps %d outside (0,%d]", p.Sweeps, maxSweeps)
	}
	if p.MeasureEvery <= 0 {
		return fmt.Errorf("model: measure_every must be positive, got %d", p.MeasureEvery)
	}
	if p.SnapshotEvery < 0 {
		return fmt.Errorf("model: snapshot_every must not be negative, got %d", p.SnapshotEvery)
	}
	if _, err := p.Schedule.Build(); err != nil {
		return err
	}
	return nil
}

// Run is the persisted record of a simulation run.
type Run struct {
	ID       string `json:"id"`
	Params   Params `json:"params"`
	State    State  `json:"state"`
	Sweep    int    `json:"sweep"` // completed sweeps
	Error    string `json:"error,omitempty"`
	Proposed uint64 `json:"proposed"`
	Accepted uint64 `json:"accepted"`
	// Revision increments on every update; cache keys embed it so stale
	// summaries fall out naturally.
	Revision   int64      `json:"revision"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// AcceptanceRatio returns accepted/proposed, or 0 before any proposal.
func (r *Run) AcceptanceRatio() float64 {
	if r.Proposed == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(r.Proposed)
}
