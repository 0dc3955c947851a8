// Package drift implements the append-only RTC drift sample log
// (SPEC_FULL §4.18): one row per manual time-set, recording the new
// rtc_set_epoch, the epoch the RTC reported just before the set, and
// their difference. This is the transport spec.md names but does not
// specify ("rtc_set_epoch... used only for drift reporting") — written by
// the console's time-set command, read only by cmd/debug.
//
// Grounded on the teacher's db package: same mattn/go-sqlite3 driver,
// same open/transaction/query shape, generalized from its HVAC schema
// (system/zones/sensors/devices tables) down to the single append-only
// table this domain needs.
package drift

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS drift_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	set_at TEXT NOT NULL,
	prior_epoch INTEGER NOT NULL,
	new_epoch INTEGER NOT NULL,
	drift_seconds INTEGER NOT NULL
);`

// Sample is one recorded manual RTC time-set.
type Sample struct {
	SetAt        time.Time
	PriorEpoch   uint32
	NewEpoch     uint32
	DriftSeconds int64
}

// Store owns the sqlite connection backing the drift log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// ensures the drift_samples table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open drift database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create drift_samples table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSet inserts one sample for a manual RTC time-set, called by the
// console's time-set command right after it writes the new time to the
// RTC.
func (s *Store) RecordSet(priorEpoch, newEpoch uint32) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin drift transaction: %w", err)
	}

	drift := int64(newEpoch) - int64(priorEpoch)
	_, err = tx.Exec(
		`INSERT INTO drift_samples (set_at, prior_epoch, new_epoch, drift_seconds) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), priorEpoch, newEpoch, drift,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert drift sample: %w", err)
	}
	return tx.Commit()
}

// History returns up to limit most recent samples, newest first. Used
// only by cmd/debug; the daemon itself never reads its own drift log.
func (s *Store) History(limit int) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT set_at, prior_epoch, new_epoch, drift_seconds FROM drift_samples ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query drift samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var setAtStr string
		var sample Sample
		if err := rows.Scan(&setAtStr, &sample.PriorEpoch, &sample.NewEpoch, &sample.DriftSeconds); err != nil {
			return nil, fmt.Errorf("scan drift sample: %w", err)
		}
		sample.SetAt, err = time.Parse(time.RFC3339, setAtStr)
		if err != nil {
			return nil, fmt.Errorf("parse drift sample timestamp: %w", err)
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}
