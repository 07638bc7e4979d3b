package memory

import (
	"context"
	"sync"

	alerts "signalwatch/internal/alerts/domain"
)

// RecordStore is an in-memory alert record store for demo/testing.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]alerts.AlertRecord
	order   []string
}

// NewRecordStore constructs a store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]alerts.AlertRecord)}
}

// Save inserts a new record.
func (s *RecordStore) Save(ctx context.Context, record alerts.AlertRecord) error {
	_ = ctx
	if record.ID == "" {
		return alerts.ErrNilRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		s.order = append(s.order, record.ID)
	}
	s.records[record.ID] = record
	return nil
}

// Update replaces an existing record.
func (s *RecordStore) Update(ctx context.Context, record alerts.AlertRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return alerts.ErrNotFound
	}
	s.records[record.ID] = record
	return nil
}

// Get loads a record by id.
func (s *RecordStore) Get(ctx context.Context, id string) (*alerts.AlertRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, alerts.ErrNotFound
	}
	return &record, nil
}

// ListRecent returns at most limit records, newest first. A non-positive limit returns all.
func (s *RecordStore) ListRecent(ctx context.Context, limit int) ([]alerts.AlertRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]alerts.AlertRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, s.records[s.order[i]])
	}
	return result, nil
}

// All returns every record in insertion order.
func (s *RecordStore) All() []alerts.AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]alerts.AlertRecord, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.records[id])
	}
	return result
}
