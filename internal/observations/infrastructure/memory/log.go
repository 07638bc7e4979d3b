package memory

import (
	"context"
	"sync"
	"time"

	observations "signalwatch/internal/observations/domain"
)

// Log is an in-memory observation log for demo/testing.
type Log struct {
	mu      sync.RWMutex
	entries []observations.Observation
	nextID  int64
}

// NewLog constructs an empty log.
func NewLog() *Log {
	return &Log{nextID: 1}
}

// Append stores the observation under the next sequence id.
func (l *Log) Append(ctx context.Context, obs observations.Observation) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, observations.StorageFault("append", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.entries = append(l.entries, obs.WithSequence(id))
	return id, nil
}

// Recent returns the last limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]observations.Observation, error) {
	_ = ctx
	if limit <= 0 {
		return []observations.Observation{}, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.entries)
	if limit > n {
		limit = n
	}
	result := make([]observations.Observation, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, l.entries[i])
	}
	return result, nil
}

// Range returns entries with from <= timestamp < to, oldest first.
func (l *Log) Range(ctx context.Context, from, to time.Time) ([]observations.Observation, error) {
	_ = ctx
	if !to.After(from) {
		return nil, observations.ErrInvalidRange
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var result []observations.Observation
	for _, obs := range l.entries {
		if obs.Timestamp.Before(from) || !obs.Timestamp.Before(to) {
			continue
		}
		result = append(result, obs)
	}
	return result, nil
}

// Len returns the number of stored entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
