package observations

import (
	"context"
	"fmt"
	"time"
)

// Log is the append-only, sequence-ordered observation history.
type Log interface {
	// Append stores the observation and returns its strictly increasing sequence id.
	Append(ctx context.Context, obs Observation) (int64, error)
	// Recent returns the last limit observations, newest first. A non-positive
	// limit yields an empty slice.
	Recent(ctx context.Context, limit int) ([]Observation, error)
	// Range returns observations with from <= timestamp < to, oldest first.
	Range(ctx context.Context, from, to time.Time) ([]Observation, error)
}

// DefaultRecentLimit is the history size served when a caller names no limit.
const DefaultRecentLimit = 100

// MaxRecentLimit is the largest history size accepted at the API and CLI.
const MaxRecentLimit = 10000

// ValidateLimit reports whether limit is an acceptable requested history size.
func ValidateLimit(limit int) error {
	if limit <= 0 || limit > MaxRecentLimit {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidLimit, limit, MaxRecentLimit)
	}
	return nil
}
