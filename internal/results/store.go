// SPDX-License-Identifier: MIT

// Package results provides SQLite persistence for per-run measurement series.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/latticelabs/znsim/internal/observables"
)

// Store provides SQLite persistence for measurement series.
type Store struct {
	db *sql.DB
}

// NewStore initialises the results database and runs migrations.
// WAL mode + busy_timeout suit the write-batched, read-heavy workload.
func NewStore(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open results database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping results database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks database connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		lattice_size INTEGER NOT NULL,
		states INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS measurements (
		run_id TEXT NOT NULL,
		sweep INTEGER NOT NULL,
		temperature REAL NOT NULL,
		energy REAL NOT NULL,
		magnetization REAL NOT NULL,
		acceptance REAL NOT NULL,
		PRIMARY KEY (run_id, sweep)
	);

	CREATE INDEX IF NOT EXISTS idx_measurements_run ON measurements(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RegisterRun records run metadata; measurement rows reference it.
func (s *Store) RegisterRun(ctx context.Context, id string, latticeSize, states int, createdAt time.Time) error {
	query := `
	INSERT INTO runs (id, lattice_size, states, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, id, latticeSize, states, createdAt.Format(time.RFC3339))
	return err
}

// SiteCount returns N = L² for a registered run, or (0, nil) when unknown.
func (s *Store) SiteCount(ctx context.Context, runID string) (int, error) {
	var size int
	err := s.db.QueryRowContext(ctx, `SELECT lattice_size FROM runs WHERE id = ?`, runID).Scan(&size)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return size * size, nil
}

// AppendMeasurements inserts a batch of rows in one transaction.
func (s *Store) AppendMeasurements(ctx context.Context, runID string, ms []observables.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin measurement batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO measurements (run_id, sweep, temperature, energy, magnetization, acceptance)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, sweep) DO UPDATE SET
		temperature = excluded.temperature,
		energy = excluded.energy,
		magnetization = excluded.magnetization,
		acceptance = excluded.acceptance
	`)
	if err != nil {
		return fmt.Errorf("prepare measurement insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range ms {
		if _, err := stmt.ExecContext(ctx, runID, m.Sweep, m.Temperature, m.Energy, m.Magnetization, m.Acceptance); err != nil {
			return fmt.Errorf("insert measurement sweep %d: %w", m.Sweep, err)
		}
	}
	return tx.Commit()
}

// Measurements returns a sweep-ordered page of a run's series plus the total
// row count.
func (s *Store) Measurements(ctx context.Context, runID string, limit, offset int) ([]observables.Measurement, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM measurements WHERE run_id = ?`, runID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT sweep, temperature, energy, magnetization, acceptance
	FROM measurements
	WHERE run_id = ?
	ORDER BY sweep
	LIMIT ? OFFSET ?
	`, runID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var out []observables.Measurement
	for rows.Next() {
		var m observables.Measurement
		if err := rows.Scan(&m.Sweep, &m.Temperature, &m.Energy, &m.Magnetization, &m.Acceptance); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// Series returns the complete sweep-ordered series of a run.
func (s *Store) Series(ctx context.Context, runID string) ([]observables.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT sweep, temperature, energy, magnetization, acceptance
	FROM measurements
	WHERE run_id = ?
	ORDER BY sweep
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []observables.Measurement
	for rows.Next() {
		var m observables.Measurement
		if err := rows.Scan(&m.Sweep, &m.Temperature, &m.Energy, &m.Magnetization, &m.Acceptance); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteRun removes the run row and its measurements.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM measurements WHERE run_id = ?`, runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return err
	}
	return tx.Commit()
}
