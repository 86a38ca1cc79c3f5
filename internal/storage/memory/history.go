// Package memory provides process-local stores for tests and single-process
// deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"field-history/internal/domain"
)

// HistoryStore keeps records in insertion order behind a mutex.
type HistoryStore struct {
	mu      sync.RWMutex
	records []domain.HistoryRecord
	seq     int64
	last    time.Time
	now     func() time.Time
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{now: time.Now}
}

func (s *HistoryStore) Create(ctx context.Context, record *domain.HistoryRecord) error {
	return s.CreateBatch(ctx, []*domain.HistoryRecord{record})
}

// CreateBatch validates the whole batch before appending any record.
func (s *HistoryStore) CreateBatch(_ context.Context, records []*domain.HistoryRecord) error {
	for _, r := range records {
		if r == nil {
			return domain.ErrInvalidRecord
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.seq++
		r.ID = s.seq
		r.CreatedAt = s.tick()
		s.records = append(s.records, *r)
	}
	return nil
}

// tick never returns a time at or before the previous one.
func (s *HistoryStore) tick() time.Time {
	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Microsecond)
	}
	s.last = ts
	return ts
}

func (s *HistoryStore) ListByEntity(_ context.Context, entityID, entityType string) ([]domain.HistoryRecord, error) {
	return s.filter(func(r domain.HistoryRecord) bool {
		return r.EntityID == entityID && r.EntityType == entityType
	}), nil
}

func (s *HistoryStore) ListByEntityAndField(_ context.Context, entityID, entityType, field string) ([]domain.HistoryRecord, error) {
	return s.filter(func(r domain.HistoryRecord) bool {
		return r.EntityID == entityID && r.EntityType == entityType && r.FieldName == field
	}), nil
}

func (s *HistoryStore) Latest(ctx context.Context, entityID, entityType, field string) (*domain.HistoryRecord, error) {
	records, _ := s.ListByEntityAndField(ctx, entityID, entityType, field)
	if len(records) == 0 {
		return nil, domain.ErrHistoryNotFound
	}
	latest := records[len(records)-1]
	return &latest, nil
}

func (s *HistoryStore) Exists(_ context.Context, entityID, entityType, field string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.EntityID == entityID && r.EntityType == entityType && r.FieldName == field {
			return true, nil
		}
	}
	return false, nil
}

// RenameField rewrites every matching record or none of them.
func (s *HistoryStore) RenameField(_ context.Context, entityType, from, to string, rewrite func(string) (string, error)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloads := make(map[int]string)
	for i, r := range s.records {
		if r.EntityType != entityType || r.FieldName != from {
			continue
		}
		payload := r.SerializedValue
		if rewrite != nil {
			var err error
			if payload, err = rewrite(payload); err != nil {
				return 0, err
			}
		}
		payloads[i] = payload
	}

	for i, payload := range payloads {
		s.records[i].FieldName = to
		s.records[i].SerializedValue = payload
	}
	return int64(len(payloads)), nil
}

// Len returns the number of stored records.
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *HistoryStore) filter(match func(domain.HistoryRecord) bool) []domain.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.HistoryRecord{}
	for _, r := range s.records {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
