// Package eventstore persists handover events to SQLite so runs can be
// queried after the fact.
package eventstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/stadium-telemetry/model"
)

// Store writes handover events belonging to one run.
type Store struct {
	db    *sql.DB
	runID string
	start time.Time
}

// Open opens (creating if needed) the events database at path and
// ensures the schema exists. runID tags every row written through the
// returned store.
func Open(path, runID string, start time.Time) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS handover_events (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			sim_time_secs REAL NOT NULL,
			entity_id INTEGER NOT NULL,
			source_cell INTEGER NOT NULL,
			target_cell INTEGER NOT NULL,
			signal_dbm REAL NOT NULL,
			distance_m REAL NOT NULL,
			total INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_handover_run ON handover_events(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: create schema: %w", err)
	}

	return &Store{db: db, runID: runID, start: start}, nil
}

// RecordHandover inserts one handover event.
func (s *Store) RecordHandover(ev model.HandoverEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO handover_events (run_id, sim_time_secs, entity_id, source_cell, target_cell, signal_dbm, distance_m, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID,
		ev.Time.Sub(s.start).Seconds(),
		uint64(ev.EntityID),
		uint64(ev.SourceCell),
		uint64(ev.TargetCell),
		ev.SignalDBm,
		ev.DistanceM,
		ev.Total,
	)
	if err != nil {
		return fmt.Errorf("eventstore: insert handover: %w", err)
	}
	return nil
}

// HandoverCount returns the number of events recorded for this run.
func (s *Store) HandoverCount() (uint64, error) {
	var n uint64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM handover_events WHERE run_id = ?`, s.runID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("eventstore: count handovers: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
