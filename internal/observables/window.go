// SPDX-License-Identifier: MIT

package observables

import "math"

// Window keeps the last capacity observations and computes estimators over
// that sliding window. During annealing a full-history variance mixes
// temperatures; the window confines the estimate to the recent bath.
type Window struct {
	sites    int
	capacity int

	energies []float64
	mags     []float64
	next     int
	filled   bool
}

// NewWindow creates a sliding window over capacity observations.
func NewWindow(sites, capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		sites:    sites,
		capacity: capacity,
		energies: make([]float64, capacity),
		mags:     make([]float64, capacity),
	}
}

// Add pushes one observation, evicting the oldest once full.
func (w *Window) Add(energy, magnetization float64) {
	w.energies[w.next] = energy
	w.mags[w.next] = magnetization
	w.next++
	if w.next == w.capacity {
		w.next = 0
		w.filled = true
	}
}

// Len returns the number of observations currently held.
func (w *Window) Len() int {
	if w.filled {
		return w.capacity
	}
	return w.next
}

func variance(xs []float64, n int) float64 {
	if n == 0 {
		return 0
	}
	mean := 0.0
	for i := 0; i < n; i++ {
		mean += xs[i]
	}
	mean /= float64(n)
	v := 0.0
	for i := 0; i < n; i++ {
		d := xs[i] - mean
		v += d * d
	}
	return v / float64(n)
}

// SpecificHeat estimates C over the window at temperature t.
func (w *Window) SpecificHeat(t float64) float64 {
	if t <= 0 || w.sites == 0 {
		return math.NaN()
	}
	return variance(w.energies, w.Len()) / (float64(w.sites) * t * t)
}

// Susceptibility estimates χ over the window at temperature t.
func (w *Window) Susceptibility(t float64) float64 {
	if t <= 0 || w.sites == 0 {
		return math.NaN()
	}
	return variance(w.mags, w.Len()) / (float64(w.sites) * t)
}
