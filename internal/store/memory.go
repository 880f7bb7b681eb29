// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/latticelabs/znsim/internal/model"
)

// MemoryStore is an in-process StateStore for tests and ephemeral deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]model.Run
	idem  map[string]idemEntry
	snaps map[string][]SnapshotRecord
}

type idemEntry struct {
	runID     string
	expiresAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]model.Run),
		idem:  make(map[string]idemEntry),
		snaps: make(map[string][]SnapshotRecord),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) PutRun(ctx context.Context, run *model.Run, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" {
		if e, ok := s.idem[key]; ok && time.Now().Before(e.expiresAt) {
			return ErrIdempotentReplay
		}
		s.idem[key] = idemEntry{runID: run.ID, expiresAt: time.Now().Add(ttl)}
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, id string, fn func(*model.Run) error) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	if err := fn(&r); err != nil {
		return nil, err
	}
	r.Revision++
	s.runs[id] = r
	out := r
	return &out, nil
}

func (s *MemoryStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	delete(s.snaps, id)
	return nil
}

func (s *MemoryStore) ListRuns(ctx context.Context) ([]*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*model.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out := r
		list = append(list, &out)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) GetIdempotency(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.idem[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.runID, true, nil
}

func (s *MemoryStore) PutSnapshot(ctx context.Context, rec SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// One record per sweep: a rewrite of the same sweep replaces, matching
	// the keyed badger backend.
	list := s.snaps[rec.RunID]
	for i := range list {
		if list[i].Sweep == rec.Sweep {
			list[i] = rec
			return nil
		}
	}
	list = append(list, rec)
	sort.Slice(list, func(i, j int) bool { return list[i].Sweep < list[j].Sweep })
	s.snaps[rec.RunID] = list
	return nil
}

func (s *MemoryStore) ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SnapshotRecord, len(s.snaps[runID]))
	copy(out, s.snaps[runID])
	return out, nil
}

var _ StateStore = (*MemoryStore)(nil)
