// SPDX-License-Identifier: MIT

// Package engine implements the Metropolis-Hastings update rule and sweep
// loop for the Zn clock model.
package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/latticelabs/znsim/internal/lattice"
)

// Engine drives Metropolis sweeps over a lattice, keeping energy and
// magnetization bookkeeping incrementally so observables are O(1) per sweep.
type Engine struct {
	lat   *lattice.Lattice
	field float64
	rng   *rand.Rand

	energy        float64
	magnetization int

	proposed uint64
	accepted uint64
}

// SweepResult reports the state after one completed sweep.
type SweepResult struct {
	Sweep         int
	Temperature   float64
	Energy        float64
	Magnetization int
	Proposed      uint64 // cumulative proposal count
	Accepted      uint64 // cumulative acceptance count
	Lattice       *lattice.Lattice
}

// Observer receives per-sweep results during Run. Returning an error aborts
// the run.
type Observer func(SweepResult) error

// New creates an engine over the given lattice. The initial energy and
// magnetization are computed once from scratch; sweeps maintain them
// incrementally afterwards.
func New(lat *lattice.Lattice, field float64, rng *rand.Rand) *Engine {
	return &Engine{
		lat:           lat,
		field:         field,
		rng:           rng,
		energy:        lat.TotalEnergy(field),
		magnetization: lat.Magnetization(),
	}
}

// Sweep performs L² single-spin Metropolis proposals at temperature temp.
func (e *Engine) Sweep(temp float64) {
	size := e.lat.Size()
	states := e.lat.States()

	for i := 0; i < size*size; i++ {
		x := e.rng.IntN(size)
		y := e.rng.IntN(size)

		oldSpin := e.lat.Spin(x, y)
		oldEnergy := e.lat.SiteEnergy(x, y, e.field)

		// Propose a uniform shift by 1..n−1 clock positions.
		shift := 1 + e.rng.IntN(states-1)
		newSpin := uint8((int(oldSpin) + shift) % states)
		e.lat.SetSpin(x, y, newSpin)
		newEnergy := e.lat.SiteEnergy(x, y, e.field)

		delta := newEnergy - oldEnergy
		e.proposed++

		if e.accept(delta, temp) {
			e.accepted++
			e.energy += delta
			e.magnetization += spinSign(newSpin) - spinSign(oldSpin)
		} else {
			e.lat.SetSpin(x, y, oldSpin)
		}
	}
}

// accept applies the Metropolis criterion: downhill moves always pass, uphill
// moves pass with probability exp(−ΔE/T). Non-positive temperatures collapse
// to greedy descent.
func (e *Engine) accept(delta, temp float64) bool {
	if delta <= 0 {
		return true
	}
	if temp <= 0 {
		return false
	}
	return e.rng.Float64() < math.Exp(-delta/temp)
}

func spinSign(s uint8) int {
	if s == 1 {
		return 1
	}
	return -1
}

// Run executes sweeps sweeps over the schedule, invoking obs after each one.
// Cancellation is honored between sweeps.
func (e *Engine) Run(ctx context.Context, sched Schedule, sweeps int, obs Observer) error {
	if sweeps <= 0 {
		return fmt.Errorf("engine: sweep count must be positive, got %d", sweeps)
	}
	for k := 0; k < sweeps; k++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		temp := sched.TemperatureAt(k, sweeps)
		e.Sweep(temp)

		if obs != nil {
			res := SweepResult{
				Sweep:         k,
				Temperature:   temp,
				Energy:        e.energy,
				Magnetization: e.magnetization,
				Proposed:      e.proposed,
				Accepted:      e.accepted,
				Lattice:       e.lat,
			}
			if err := obs(res); err != nil {
				return fmt.Errorf("engine: observer aborted at sweep %d: %w", k, err)
			}
		}
	}
	return nil
}

// Energy returns the incrementally maintained total energy.
func (e *Engine) Energy() float64 { return e.energy }

// Magnetization returns the incrementally maintained magnetization.
func (e *Engine) Magnetization() int { return e.magnetization }

// Acceptance returns cumulative proposal and acceptance counts.
func (e *Engine) Acceptance() (proposed, accepted uint64) {
	return e.proposed, e.accepted
}

// Lattice exposes the underlying lattice (not a copy).
func (e *Engine) Lattice() *lattice.Lattice { return e.lat }
