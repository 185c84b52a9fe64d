// Package memory keeps scan records in process memory.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/grasp/internal/domain/scanning"
)

var _ scanning.RecordRepository = (*RecordStore)(nil)

// RecordStore is a RecordRepository for tests and runs without a database.
type RecordStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]scanning.ScanRecord
	order   []uuid.UUID
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[uuid.UUID]scanning.ScanRecord)}
}

// SaveRecord stores a copy of rec.
func (s *RecordStore) SaveRecord(_ context.Context, rec *scanning.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.TaskID]; !ok {
		s.order = append(s.order, rec.TaskID)
	}
	s.records[rec.TaskID] = *rec
	return nil
}

// GetRecord returns a copy of the record for taskID.
func (s *RecordStore) GetRecord(_ context.Context, taskID uuid.UUID) (*scanning.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[taskID]
	if !ok {
		return nil, scanning.ErrRecordNotFound
	}
	return &rec, nil
}

// ListRecordsByAbility returns up to limit records for ability, most recently
// finished first. Records saved later win ties.
func (s *RecordStore) ListRecordsByAbility(_ context.Context, ability string, limit int) ([]*scanning.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*scanning.ScanRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.records[s.order[i]]
		if rec.AbilityName == ability {
			out = append(out, &rec)
		}
	}
	slices.SortStableFunc(out, func(a, b *scanning.ScanRecord) int {
		return b.FinishedAt.Compare(a.FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
