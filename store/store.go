// Package store records telemetry in SQLite so walks can be reviewed after the fact.
package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/internal/monitoring"
	"github.com/calvinmclean/echoguide/telemetry"
)

// DB is a telemetry Sink backed by SQLite. Every DB opened gets a new session ID so separate runs can be
// told apart in the same file. Inserts can block, so wrap it with telemetry.Buffered for live use.
type DB struct {
	*sql.DB
	session string
}

var _ telemetry.Sink = (*DB)(nil)

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS snapshots (
			session_id        TEXT,
			side              TEXT,
			unix_ms           BIGINT,
			valid             INTEGER,
			distance          DOUBLE,
			level             INTEGER,
			alert             INTEGER,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS faults (
			session_id        TEXT,
			side              TEXT,
			unix_ms           BIGINT,
			component         TEXT,
			message           TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_side ON snapshots (side);
	`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{DB: db, session: uuid.NewString()}, nil
}

// Session is the ID attached to every row written through this DB
func (db *DB) Session() string {
	return db.session
}

// RecordSnapshot inserts a snapshot
func (db *DB) RecordSnapshot(s echoguide.Snapshot) error {
	_, err := db.Exec(
		`INSERT INTO snapshots (session_id, side, unix_ms, valid, distance, level, alert) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		db.session, s.Side.Short(), s.Timestamp.UnixMilli(), s.Estimate.Valid, s.Estimate.Distance, int(s.Command.Level), s.Command.Alert,
	)
	return err
}

// RecordFault inserts a fault
func (db *DB) RecordFault(f echoguide.Fault) error {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	_, err := db.Exec(
		`INSERT INTO faults (session_id, side, unix_ms, component, message) VALUES (?, ?, ?, ?, ?)`,
		db.session, f.Side.Short(), f.Timestamp.UnixMilli(), f.Component, msg,
	)
	return err
}

// PublishSnapshot implements telemetry.Sink.
func (db *DB) PublishSnapshot(s echoguide.Snapshot) {
	if err := db.RecordSnapshot(s); err != nil {
		monitoring.Logf("failed to record snapshot: %v", err)
	}
}

// PublishFault implements telemetry.Sink.
func (db *DB) PublishFault(f echoguide.Fault) {
	if err := db.RecordFault(f); err != nil {
		monitoring.Logf("failed to record fault: %v", err)
	}
}

// Distances returns every valid estimate distance recorded for a side, oldest first
func (db *DB) Distances(side echoguide.Side) ([]float64, error) {
	rows, err := db.Query(
		`SELECT distance FROM snapshots WHERE side = ? AND valid = 1 ORDER BY unix_ms, rowid`,
		side.Short(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan distance: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// AlertRatio is the fraction of a side's snapshots that commanded the alert. It is 0 when nothing
// has been recorded.
func (db *DB) AlertRatio(side echoguide.Side) (float64, error) {
	var ratio sql.NullFloat64
	err := db.QueryRow(
		`SELECT AVG(alert) FROM snapshots WHERE side = ?`,
		side.Short(),
	).Scan(&ratio)
	if err != nil {
		return 0, err
	}
	return ratio.Float64, nil
}

// FaultCounts returns the number of faults per component for a side
func (db *DB) FaultCounts(side echoguide.Side) (map[string]int, error) {
	rows, err := db.Query(
		`SELECT component, COUNT(*) FROM faults WHERE side = ? GROUP BY component`,
		side.Short(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]int{}
	for rows.Next() {
		var component string
		var n int
		if err := rows.Scan(&component, &n); err != nil {
			return nil, fmt.Errorf("failed to scan fault count: %w", err)
		}
		result[component] = n
	}
	return result, rows.Err()
}
