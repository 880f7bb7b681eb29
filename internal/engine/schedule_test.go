// SPDX-License-Identifier: MIT

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantSchedule(t *testing.T) {
	s := Constant{T: 2.5}
	assert.InDelta(t, 2.5, s.TemperatureAt(0, 100), 1e-12)
	assert.InDelta(t, 2.5, s.TemperatureAt(99, 100), 1e-12)
}

func TestLinearScheduleEndpoints(t *testing.T) {
	s := Linear{From: 5.0, To: 0.01}

	assert.InDelta(t, 5.0, s.TemperatureAt(0, 500), 1e-12)
	assert.InDelta(t, 0.01, s.TemperatureAt(499, 500), 1e-12)

	// Midpoint of the ramp.
	mid := s.TemperatureAt(250, 501)
	assert.InDelta(t, (5.0+0.01)/2, mid, 1e-9)

	// Degenerate single-sweep run holds the start temperature.
	assert.InDelta(t, 5.0, s.TemperatureAt(0, 1), 1e-12)
}

func TestLinearScheduleMonotone(t *testing.T) {
	s := Linear{From: 5.0, To: 0.01}
	prev := s.TemperatureAt(0, 500)
	for k := 1; k < 500; k++ {
		cur := s.TemperatureAt(k, 500)
		assert.Less(t, cur, prev, "sweep %d", k)
		prev = cur
	}
}

func TestStepsSchedule(t *testing.T) {
	s := Steps{Temperatures: []float64{3.0, 2.0, 1.0}}
	assert.InDelta(t, 3.0, s.TemperatureAt(0, 10), 1e-12)
	assert.InDelta(t, 1.0, s.TemperatureAt(2, 10), 1e-12)
	// Past the end the last entry holds.
	assert.InDelta(t, 1.0, s.TemperatureAt(9, 10), 1e-12)

	empty := Steps{}
	assert.Zero(t, empty.TemperatureAt(0, 10))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule(Linear{From: 5.0, To: 0.01}, 500))
	assert.Error(t, ValidateSchedule(Linear{From: 1.0, To: -1.0}, 10))
	assert.Error(t, ValidateSchedule(Constant{T: 0}, 5))
}
