// Package sqlite stores the observation history in an embedded SQLite database (WAL mode).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	observations "signalwatch/internal/observations/domain"
)

// Table is the observation table name.
const Table = "observations"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS observations (
	sequence_id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_ns INTEGER NOT NULL,
	state TEXT NOT NULL,
	confidence REAL NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_observations_ts ON observations(ts_ns);
`

// Log is a SQLite-backed observation log.
type Log struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, errors.New("sqlite log: empty path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create observation db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open observation db: %w", err)
	}
	log, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return log, nil
}

// New wraps an existing database handle and ensures the schema exists.
func New(db *sql.DB) (*Log, error) {
	if db == nil {
		return nil, errors.New("sqlite log: nil db")
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("init observation schema: %w", err)
	}
	return &Log{db: db}, nil
}

// DB exposes the underlying handle.
func (l *Log) DB() *sql.DB {
	return l.db
}

// Close releases the database handle.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append inserts the observation; AUTOINCREMENT guarantees ids are never reused.
func (l *Log) Append(ctx context.Context, obs observations.Observation) (int64, error) {
	if l == nil || l.db == nil {
		return 0, observations.ErrNilLog
	}
	res, err := l.db.ExecContext(ctx, `
INSERT INTO observations (ts_ns, state, confidence, source, detail)
VALUES (?, ?, ?, ?, ?)`,
		obs.Timestamp.UTC().UnixNano(),
		string(obs.State),
		obs.Confidence,
		obs.Source,
		obs.Detail,
	)
	if err != nil {
		return 0, observations.StorageFault("append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, observations.StorageFault("append", err)
	}
	return id, nil
}

// Recent returns the last limit rows, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]observations.Observation, error) {
	if l == nil || l.db == nil {
		return nil, observations.ErrNilLog
	}
	if limit <= 0 {
		return []observations.Observation{}, nil
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT sequence_id, ts_ns, state, confidence, source, detail
FROM observations
ORDER BY sequence_id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, observations.StorageFault("recent", err)
	}
	return scanObservations(rows)
}

// Range returns rows with from <= ts < to, oldest first.
func (l *Log) Range(ctx context.Context, from, to time.Time) ([]observations.Observation, error) {
	if l == nil || l.db == nil {
		return nil, observations.ErrNilLog
	}
	if !to.After(from) {
		return nil, observations.ErrInvalidRange
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT sequence_id, ts_ns, state, confidence, source, detail
FROM observations
WHERE ts_ns >= ? AND ts_ns < ?
ORDER BY sequence_id ASC`, from.UTC().UnixNano(), to.UTC().UnixNano())
	if err != nil {
		return nil, observations.StorageFault("range", err)
	}
	return scanObservations(rows)
}

func scanObservations(rows *sql.Rows) ([]observations.Observation, error) {
	defer rows.Close()
	var result []observations.Observation
	for rows.Next() {
		var (
			obs   observations.Observation
			tsNS  int64
			state string
		)
		if err := rows.Scan(&obs.SequenceID, &tsNS, &state, &obs.Confidence, &obs.Source, &obs.Detail); err != nil {
			return nil, observations.StorageFault("scan", err)
		}
		obs.Timestamp = time.Unix(0, tsNS).UTC()
		obs.State = observations.ParseSignalState(state)
		result = append(result, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, observations.StorageFault("scan", err)
	}
	return result, nil
}
