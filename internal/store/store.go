// SPDX-License-Identifier: MIT

// Package store persists run state, idempotency keys and lattice snapshots.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/latticelabs/znsim/internal/lattice"
	"github.com/latticelabs/znsim/internal/model"
)

var (
	// ErrRunNotFound is returned by updates against a missing run.
	ErrRunNotFound = errors.New("store: run not found")
	// ErrIdempotentReplay signals that an idempotency key is already bound.
	ErrIdempotentReplay = errors.New("store: idempotency key already used")
)

// SnapshotRecord is a lattice configuration captured at a given sweep.
type SnapshotRecord struct {
	RunID    string           `json:"run_id"`
	Sweep    int              `json:"sweep"`
	Snapshot lattice.Snapshot `json:"snapshot"`
}

// StateStore persists run records and snapshots.
type StateStore interface {
	// PutRun writes a run record. When idemKey is non-empty the write is
	// idempotent: a replay returns ErrIdempotentReplay.
	PutRun(ctx context.Context, run *model.Run, idemKey string, ttl time.Duration) error
	// GetRun returns the run, or (nil, nil) when absent.
	GetRun(ctx context.Context, id string) (*model.Run, error)
	// UpdateRun applies fn to the stored record atomically, bumping its
	// revision. Returns ErrRunNotFound when the run does not exist.
	UpdateRun(ctx context.Context, id string, fn func(*model.Run) error) (*model.Run, error)
	// DeleteRun removes the run record and its snapshots.
	DeleteRun(ctx context.Context, id string) error
	// ListRuns returns all run records.
	ListRuns(ctx context.Context) ([]*model.Run, error)
	// GetIdempotency resolves an idempotency key to a run ID.
	GetIdempotency(ctx context.Context, key string) (runID string, ok bool, err error)

	// PutSnapshot stores the lattice configuration at a sweep.
	PutSnapshot(ctx context.Context, rec SnapshotRecord) error
	// ListSnapshots returns a run's snapshots ordered by sweep.
	ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error)

	Close() error
}
