package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	observations "signalwatch/internal/observations/domain"
)

const defaultObservationsTable = "signal_observations"

// Log is a Postgres implementation of the observation log.
type Log struct {
	db    *sql.DB
	table string
}

// LogOption configures the log.
type LogOption func(*Log)

// WithTable overrides the default table name.
func WithTable(table string) LogOption {
	return func(l *Log) {
		if table != "" {
			l.table = table
		}
	}
}

// NewLog constructs a log with the default table name.
func NewLog(db *sql.DB, opts ...LogOption) *Log {
	log := &Log{db: db, table: defaultObservationsTable}
	for _, opt := range opts {
		opt(log)
	}
	return log
}

// Table returns the observation table name.
func (l *Log) Table() string {
	return l.table
}

// EnsureSchema creates the observations table when missing.
func (l *Log) EnsureSchema(ctx context.Context) error {
	if l == nil || l.db == nil {
		return observations.ErrNilLog
	}
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	sequence_id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	state TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_ts ON %[1]s (ts)`, l.table))
	return err
}

// Append inserts the observation and returns the generated sequence id.
func (l *Log) Append(ctx context.Context, obs observations.Observation) (int64, error) {
	if l == nil || l.db == nil {
		return 0, observations.ErrNilLog
	}
	query := fmt.Sprintf(`
INSERT INTO %s (ts, state, confidence, source, detail)
VALUES ($1, $2, $3, $4, $5)
RETURNING sequence_id`, l.table)

	var id int64
	err := l.db.QueryRowContext(ctx, query,
		obs.Timestamp.UTC(),
		string(obs.State),
		obs.Confidence,
		obs.Source,
		obs.Detail,
	).Scan(&id)
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
	query := fmt.Sprintf(`
SELECT sequence_id, ts, state, confidence, source, detail
FROM %s
ORDER BY sequence_id DESC
LIMIT $1`, l.table)
	rows, err := l.db.QueryContext(ctx, query, limit)
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
	query := fmt.Sprintf(`
SELECT sequence_id, ts, state, confidence, source, detail
FROM %s
WHERE ts >= $1 AND ts < $2
ORDER BY sequence_id ASC`, l.table)
	rows, err := l.db.QueryContext(ctx, query, from.UTC(), to.UTC())
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
			state string
		)
		if err := rows.Scan(&obs.SequenceID, &obs.Timestamp, &state, &obs.Confidence, &obs.Source, &obs.Detail); err != nil {
			return nil, observations.StorageFault("scan", err)
		}
		obs.Timestamp = obs.Timestamp.UTC()
		obs.State = observations.ParseSignalState(state)
		result = append(result, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, observations.StorageFault("scan", err)
	}
	return result, nil
}
