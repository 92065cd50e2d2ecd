// Package memory provides an in-process activity store for local development and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"example.com/useractivity/internal/domain"
)

type entry struct {
	record domain.ActivityRecord
	seq    uint64
}

// Store keeps activity records in memory, indexed by id and dedup key.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*entry
	byKey map[domain.DedupKey]string
	seq   uint64
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		byID:  make(map[string]*entry),
		byKey: make(map[domain.DedupKey]string),
	}
}

// Upsert implements domain.ActivityRepository.
func (s *Store) Upsert(ctx context.Context, record domain.ActivityRecord) (domain.ActivityRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ActivityRecord{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[record.Key()]; ok {
		existing := s.byID[id]
		if record.Timestamp.After(existing.record.Timestamp) {
			existing.record.Timestamp = record.Timestamp
		}
		return existing.record, false, nil
	}

	s.seq++
	s.byID[record.ID] = &entry{record: record, seq: s.seq}
	s.byKey[record.Key()] = record.ID
	return record, true, nil
}

// FindByKey implements domain.ActivityRepository.
func (s *Store) FindByKey(ctx context.Context, key domain.DedupKey) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	rec := s.byID[id].record
	return &rec, nil
}

// Get implements domain.ActivityRepository.
func (s *Store) Get(ctx context.Context, activityID string) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[activityID]
	if !ok {
		return nil, nil
	}
	rec := e.record
	return &rec, nil
}

// ListByUserAndType implements domain.ActivityRepository.
func (s *Store) ListByUserAndType(ctx context.Context, userID string, activityType domain.ActivityType) ([]domain.ActivityRecord, error) {
	s.mu.RLock()
	matched := make([]*entry, 0)
	for _, e := range s.byID {
		if e.record.UserID == userID && e.record.Type == activityType {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *entry) int {
		if c := b.record.Timestamp.Compare(a.record.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	out := make([]domain.ActivityRecord, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.record)
	}
	return out, nil
}

// Delete implements domain.ActivityRepository.
func (s *Store) Delete(ctx context.Context, record domain.ActivityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(record.ID)
	return nil
}

// DeleteMany implements domain.ActivityRepository.
func (s *Store) DeleteMany(ctx context.Context, records []domain.ActivityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.deleteLocked(rec.ID)
	}
	return nil
}

func (s *Store) deleteLocked(id string) {
	e, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	if s.byKey[e.record.Key()] == id {
		delete(s.byKey, e.record.Key())
	}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
