package alerts

import "errors"

var (
	// ErrNotFound indicates a missing alert record.
	ErrNotFound = errors.New("alerts: not found")
	// ErrNilRecord is returned when saving a nil or empty record.
	ErrNilRecord = errors.New("alerts: nil record")
	// ErrAbandoned is recorded when a retry sequence stops because the episode ended.
	ErrAbandoned = errors.New("abandoned: signal recovered")
	// ErrRetriesExhausted is recorded when every attempt failed transiently.
	ErrRetriesExhausted = errors.New("retries exhausted")
)
