// SPDX-License-Identifier: MIT

package lattice

import "fmt"

// Snapshot is a serialisable copy of a lattice configuration. Spins are kept
// as raw bytes so JSON encoding stays compact (base64) for store payloads.
type Snapshot struct {
	Size   int    `json:"size"`
	States int    `json:"states"`
	Spins  []byte `json:"spins"`
}

// Snapshot captures the current configuration.
func (l *Lattice) Snapshot() Snapshot {
	return Snapshot{
		Size:   l.size,
		States: l.states,
		Spins:  l.Spins(),
	}
}

// FromSnapshot restores a lattice from a snapshot, validating its shape.
func FromSnapshot(s Snapshot) (*Lattice, error) {
	l, err := newEmpty(s.Size, s.States)
	if err != nil {
		return nil, err
	}
	if len(s.Spins) != s.Size*s.Size {
		return nil, fmt.Errorf("lattice: snapshot has %d spins, want %d", len(s.Spins), s.Size*s.Size)
	}
	for i, sp := range s.Spins {
		if int(sp) >= s.States {
			return nil, fmt.Errorf("lattice: snapshot spin %d out of range at index %d", sp, i)
		}
	}
	copy(l.spins, s.Spins)
	return l, nil
}
