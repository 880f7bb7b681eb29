// SPDX-License-Identifier: MIT

// Package lattice implements the Zn clock model state container: an L×L grid
// of discrete spin orientations with periodic boundary conditions and the
// Kronecker-delta nearest-neighbour Hamiltonian.
package lattice

import (
	"fmt"
	"math/rand/v2"
)

const (
	// MinSize is the smallest supported lattice edge length. Below two sites
	// per edge the periodic neighbour set degenerates onto the site itself.
	MinSize = 2
	// MinStates is the smallest supported number of clock states.
	MinStates = 2
	// MaxStates is bounded by the uint8 spin encoding.
	MaxStates = 255
)

// Lattice is a square grid of spins with periodic (toroidal) boundaries.
// Each spin holds an orientation index in [0, states).
type Lattice struct {
	size   int
	states int
	spins  []uint8
}

// New creates a lattice of size×size sites with uniformly random orientations.
func New(size, states int, rng *rand.Rand) (*Lattice, error) {
	l, err := newEmpty(size, states)
	if err != nil {
		return nil, err
	}
	for i := range l.spins {
		l.spins[i] = uint8(rng.IntN(states))
	}
	return l, nil
}

// NewUniform creates a lattice with every spin set to the same orientation.
// Used as the ordered (ground state) starting configuration.
func NewUniform(size, states int, spin uint8) (*Lattice, error) {
	l, err := newEmpty(size, states)
	if err != nil {
		return nil, err
	}
	if int(spin) >= states {
		return nil, fmt.Errorf("lattice: spin %d out of range [0,%d)", spin, states)
	}
	for i := range l.spins {
		l.spins[i] = spin
	}
	return l, nil
}

func newEmpty(size, states int) (*Lattice, error) {
	if size < MinSize {
		return nil, fmt.Errorf("lattice: size %d below minimum %d", size, MinSize)
	}
	if states < MinStates || states > MaxStates {
		return nil, fmt.Errorf("lattice: states %d outside [%d,%d]", states, MinStates, MaxStates)
	}
	return &Lattice{
		size:   size,
		states: states,
		spins:  make([]uint8, size*size),
	}, nil
}

// Size returns the edge length L.
func (l *Lattice) Size() int { return l.size }

// States returns the number of clock states n.
func (l *Lattice) States() int { return l.states }

// Sites returns the total number of sites N = L².
func (l *Lattice) Sites() int { return l.size * l.size }

// Spin returns the orientation at (x, y). Coordinates are taken modulo L.
func (l *Lattice) Spin(x, y int) uint8 {
	return l.spins[l.index(x, y)]
}

// SetSpin assigns the orientation at (x, y).
func (l *Lattice) SetSpin(x, y int, s uint8) {
	l.spins[l.index(x, y)] = s
}

func (l *Lattice) index(x, y int) int {
	x = wrap(x, l.size)
	y = wrap(y, l.size)
	return x*l.size + y
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// spinSign maps an orientation to the ±1 indicator used for magnetization and
// the external field coupling: +1 for orientation 1, −1 otherwise.
func spinSign(s uint8) int {
	if s == 1 {
		return 1
	}
	return -1
}

// SiteEnergy evaluates the local Hamiltonian at (x, y): a −1 contribution per
// aligned nearest neighbour plus the field term −H·σ(s).
func (l *Lattice) SiteEnergy(x, y int, field float64) float64 {
	s := l.Spin(x, y)
	aligned := 0
	if l.Spin(x+1, y) == s {
		aligned++
	}
	if l.Spin(x-1, y) == s {
		aligned++
	}
	if l.Spin(x, y+1) == s {
		aligned++
	}
	if l.Spin(x, y-1) == s {
		aligned++
	}
	return -float64(aligned) - field*float64(spinSign(s))
}

// TotalEnergy evaluates the Hamiltonian over the whole lattice. Pair
// interactions are halved to avoid double counting; the single-site field
// term is halved with them, matching the per-site evaluation convention.
func (l *Lattice) TotalEnergy(field float64) float64 {
	total := 0.0
	for x := 0; x < l.size; x++ {
		for y := 0; y < l.size; y++ {
			total += l.SiteEnergy(x, y, field)
		}
	}
	return total / 2
}

// Magnetization returns Σ σ(s) over all sites.
func (l *Lattice) Magnetization() int {
	m := 0
	for _, s := range l.spins {
		m += spinSign(s)
	}
	return m
}

// Clone returns a deep copy.
func (l *Lattice) Clone() *Lattice {
	spins := make([]uint8, len(l.spins))
	copy(spins, l.spins)
	return &Lattice{size: l.size, states: l.states, spins: spins}
}

// Spins returns a copy of the raw orientation grid in row-major order.
func (l *Lattice) Spins() []uint8 {
	out := make([]uint8, len(l.spins))
	copy(out, l.spins)
	return out
}
