// SPDX-License-Identifier: MIT

package engine

import "fmt"

// Schedule yields the bath temperature for sweep k of a run with total sweeps.
type Schedule interface {
	TemperatureAt(sweep, total int) float64
}

// Constant holds the temperature fixed for the whole run.
type Constant struct {
	T float64
}

func (c Constant) TemperatureAt(int, int) float64 { return c.T }

// Linear interpolates evenly from From at sweep 0 to To at the final sweep,
// the annealing ramp used for quench runs.
type Linear struct {
	From float64
	To   float64
}

func (l Linear) TemperatureAt(sweep, total int) float64 {
	if total <= 1 {
		return l.From
	}
	frac := float64(sweep) / float64(total-1)
	return l.From + (l.To-l.From)*frac
}

// Steps walks an explicit temperature list; sweeps beyond the list hold the
// last entry. Used for staged temperature scans.
type Steps struct {
	Temperatures []float64
}

func (s Steps) TemperatureAt(sweep, _ int) float64 {
	if len(s.Temperatures) == 0 {
		return 0
	}
	if sweep >= len(s.Temperatures) {
		return s.Temperatures[len(s.Temperatures)-1]
	}
	return s.Temperatures[sweep]
}

// ValidateSchedule rejects schedules that would drive the acceptance rule
// into undefined territory (non-positive temperatures).
func ValidateSchedule(s Schedule, total int) error {
	for k := 0; k < total; k++ {
		if t := s.TemperatureAt(k, total); t <= 0 {
			return fmt.Errorf("engine: schedule yields non-positive temperature %g at sweep %d", t, k)
		}
	}
	return nil
}
