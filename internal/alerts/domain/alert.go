package alerts

import (
	"context"
	"time"
)

// Status is the dispatch outcome of an AlertRecord.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
)

// Terminal reports whether the record can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusSuppressed
}

// AlertRecord tracks one alert decision for a triggering observation.
type AlertRecord struct {
	ID                      string    `json:"id"`
	TriggeringObservationID int64     `json:"triggering_observation_id"`
	EpisodeID               string    `json:"episode_id"`
	Status                  Status    `json:"status"`
	AttemptCount            int       `json:"attempt_count"`
	FirstAttemptAt          time.Time `json:"first_attempt_at,omitempty"`
	LastAttemptAt           time.Time `json:"last_attempt_at,omitempty"`
	LastError               string    `json:"last_error,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// RecordStore persists alert records.
type RecordStore interface {
	Save(ctx context.Context, record AlertRecord) error
	Update(ctx context.Context, record AlertRecord) error
	Get(ctx context.Context, id string) (*AlertRecord, error)
	ListRecent(ctx context.Context, limit int) ([]AlertRecord, error)
}
