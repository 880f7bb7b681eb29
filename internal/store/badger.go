// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/latticelabs/znsim/internal/model"
)

// BadgerStore is the embedded on-disk StateStore. Key layout:
//   - runs:       "run:<id>" (JSON)
//   - idempotency "idem:<key>" (value = run ID) with TTL
//   - snapshots   "snap:<id>:<sweep%012d>" (JSON), ordered by sweep
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func runKey(id string) []byte { return []byte("run:" + id) }

func idemKey(key string) []byte { return []byte("idem:" + key) }

func snapKey(runID string, sweep int) []byte {
	return fmt.Appendf(nil, "snap:%s:%012d", runID, sweep)
}

func snapPrefix(runID string) []byte {
	return []byte("snap:" + runID + ":")
}

// PutRun writes the run record, optionally guarded by an idempotency key.
func (s *BadgerStore) PutRun(ctx context.Context, run *model.Run, key string, ttl time.Duration) error {
	buf, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if key != "" {
			ik := idemKey(key)
			if _, err := txn.Get(ik); err == nil {
				return ErrIdempotentReplay
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			entry := badger.NewEntry(ik, []byte(run.ID)).WithTTL(ttl)
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return txn.Set(runKey(run.ID), buf)
	})
}

// GetRun returns the run record, or (nil, nil) when absent.
func (s *BadgerStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var out model.Run
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// UpdateRun applies fn inside a transaction and bumps the record revision.
func (s *BadgerStore) UpdateRun(ctx context.Context, id string, fn func(*model.Run) error) (*model.Run, error) {
	var out model.Run
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRunNotFound
			}
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		}); err != nil {
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		out.Revision++
		buf, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return txn.Set(runKey(id), buf)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRun removes the run record and drops all of its snapshots.
func (s *BadgerStore) DeleteRun(ctx context.Context, id string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(runKey(id))
	}); err != nil {
		return err
	}
	return s.db.DropPrefix(snapPrefix(id))
}

// ListRuns scans all run records.
func (s *BadgerStore) ListRuns(ctx context.Context) ([]*model.Run, error) {
	var list []*model.Run
	prefix := []byte("run:")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec model.Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			list = append(list, &rec)
		}
		return nil
	})
	return list, err
}

// GetIdempotency resolves an idempotency key to a run ID.
func (s *BadgerStore) GetIdempotency(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idemKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// PutSnapshot stores a lattice snapshot.
func (s *BadgerStore) PutSnapshot(ctx context.Context, rec SnapshotRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s/%d: %w", rec.RunID, rec.Sweep, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapKey(rec.RunID, rec.Sweep), buf)
	})
}

// ListSnapshots returns a run's snapshots in sweep order (the zero-padded key
// layout makes lexicographic iteration numeric).
func (s *BadgerStore) ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error) {
	var list []SnapshotRecord
	prefix := snapPrefix(runID)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec SnapshotRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			list = append(list, rec)
		}
		return nil
	})
	return list, err
}

// Compile-time interface check.
var _ StateStore = (*BadgerStore)(nil)
