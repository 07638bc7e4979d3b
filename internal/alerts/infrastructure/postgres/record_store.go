package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	alerts "signalwatch/internal/alerts/domain"
)

const defaultAlertRecordsTable = "signal_alert_records"

// RecordStore persists alert records in Postgres.
type RecordStore struct {
	db    *sql.DB
	table string
}

// Option configures the store.
type Option func(*RecordStore)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(s *RecordStore) {
		if table != "" {
			s.table = table
		}
	}
}

// NewRecordStore constructs a store with the default table name.
func NewRecordStore(db *sql.DB, opts ...Option) *RecordStore {
	store := &RecordStore{db: db, table: defaultAlertRecordsTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// EnsureSchema creates the alert records table when missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("alert record store: nil db")
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	observation_id BIGINT NOT NULL,
	episode_id TEXT NOT NULL,
	status TEXT NOT NULL,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	first_attempt_at TIMESTAMPTZ,
	last_attempt_at TIMESTAMPTZ,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_created ON %[1]s (created_at)`, s.table))
	return err
}

// Save inserts a record.
func (s *RecordStore) Save(ctx context.Context, record alerts.AlertRecord) error {
	if s == nil || s.db == nil {
		return errors.New("alert record store: nil db")
	}
	if record.ID == "" {
		return alerts.ErrNilRecord
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, observation_id, episode_id, status, attempt_count,
	first_attempt_at, last_attempt_at, last_error, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9, $10
)`, s.table),
		record.ID,
		record.TriggeringObservationID,
		record.EpisodeID,
		string(record.Status),
		record.AttemptCount,
		nullTime(record.FirstAttemptAt),
		nullTime(record.LastAttemptAt),
		record.LastError,
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
	)
	return err
}

// Update writes the mutable dispatch fields of a record.
func (s *RecordStore) Update(ctx context.Context, record alerts.AlertRecord) error {
	if s == nil || s.db == nil {
		return errors.New("alert record store: nil db")
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	attempt_count = $3,
	first_attempt_at = $4,
	last_attempt_at = $5,
	last_error = $6,
	updated_at = $7
WHERE id = $1`, s.table),
		record.ID,
		string(record.Status),
		record.AttemptCount,
		nullTime(record.FirstAttemptAt),
		nullTime(record.LastAttemptAt),
		record.LastError,
		record.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

// Get loads a record by id.
func (s *RecordStore) Get(ctx context.Context, id string) (*alerts.AlertRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("alert record store: nil db")
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, observation_id, episode_id, status, attempt_count,
	first_attempt_at, last_attempt_at, last_error, created_at, updated_at
FROM %s
WHERE id = $1`, s.table), id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, alerts.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// ListRecent returns at most limit records, newest first.
func (s *RecordStore) ListRecent(ctx context.Context, limit int) ([]alerts.AlertRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("alert record store: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, observation_id, episode_id, status, attempt_count,
	first_attempt_at, last_attempt_at, last_error, created_at, updated_at
FROM %s
ORDER BY created_at DESC, id DESC
LIMIT $1`, s.table), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []alerts.AlertRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*alerts.AlertRecord, error) {
	var (
		record       alerts.AlertRecord
		status       string
		firstAttempt sql.NullTime
		lastAttempt  sql.NullTime
	)
	if err := row.Scan(
		&record.ID,
		&record.TriggeringObservationID,
		&record.EpisodeID,
		&status,
		&record.AttemptCount,
		&firstAttempt,
		&lastAttempt,
		&record.LastError,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	record.Status = alerts.Status(status)
	if firstAttempt.Valid {
		record.FirstAttemptAt = firstAttempt.Time.UTC()
	}
	if lastAttempt.Valid {
		record.LastAttemptAt = lastAttempt.Time.UTC()
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}
