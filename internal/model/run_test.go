// SPDX-License-Identifier: MIT

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticelabs/znsim/internal/engine"
)

func TestDefaultParamsValid(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 50, p.LatticeSize)
	assert.Equal(t, 2, p.States)
	assert.Equal(t, 500, p.Sweeps)
	assert.Equal(t, ScheduleLinear, p.Schedule.Kind)
}

func TestParamsValidate(t *testing.T) {
	base := DefaultParams()

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"lattice too small", func(p *Params) { p.LatticeSize = 1 }},
		{"too few states", func(p *Params) { p.States = 1 }},
		{"states overflow", func(p *Params) { p.States = 300 }},
		{"zero sweeps", func(p *Params) { p.Sweeps = 0 }},
		{"excessive sweeps", func(p *Params) { p.Sweeps = 20_000_000 }},
		{"zero measure interval", func(p *Params) { p.MeasureEvery = 0 }},
		{"negative snapshot interval", func(p *Params) { p.SnapshotEvery = -1 }},
		{"bad schedule kind", func(p *Params) { p.Schedule.Kind = "exponential" }},
		{"non-positive ramp", func(p *Params) { p.Schedule.To = -0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestScheduleSpecBuild(t *testing.T) {
	sched, err := (ScheduleSpec{Kind: ScheduleConstant, T: 2.0}).Build()
	require.NoError(t, err)
	assert.IsType(t, engine.Constant{}, sched)

	sched, err = (ScheduleSpec{Kind: ScheduleLinear, From: 5, To: 0.01}).Build()
	require.NoError(t, err)
	assert.IsType(t, engine.Linear{}, sched)

	sched, err = (ScheduleSpec{Kind: ScheduleSteps, Temperatures: []float64{3, 2, 1}}).Build()
	require.NoError(t, err)
	assert.IsType(t, engine.Steps{}, sched)

	_, err = (ScheduleSpec{Kind: ScheduleSteps}).Build()
	assert.Error(t, err)
	_, err = (ScheduleSpec{Kind: ScheduleConstant, T: 0}).Build()
	assert.Error(t, err)
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCanceled.Terminal())
}

func TestAcceptanceRatio(t *testing.T) {
	r := &Run{}
	assert.Zero(t, r.AcceptanceRatio())

	r.Proposed = 200
	r.Accepted = 50
	assert.InDelta(t, 0.25, r.AcceptanceRatio(), 1e-12)
}
