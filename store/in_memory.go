package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/teammesh/core"
)

// InMemoryStore is a volatile DataStore keeping records in a process local
// map. It is safe for concurrent access and suited to tests and single
// process deployments. Returned records are copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]core.Record // id -> record
	now     func() time.Time
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]core.Record),
		now:     time.Now,
	}
}

// StoreData implements core.DataStore.
func (s *InMemoryStore) StoreData(_ context.Context, rec core.Record, allowMultiple bool) (string, error) {
	if rec.Key == "" {
		return "", fmt.Errorf("store: record key is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !allowMultiple {
		if existing, ok := s.newestLocked(rec.Key, rec.Meta, true); ok {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		}
	}

	if rec.ID == "" {
		rec.ID = core.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	s.records[rec.ID] = rec

	return rec.ID, nil
}

// GetDataSingle implements core.DataStore.
func (s *InMemoryStore) GetDataSingle(_ context.Context, key string, filter core.Meta) (*core.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.newestLocked(key, filter, false)
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

// GetDataMany implements core.DataStore.
func (s *InMemoryStore) GetDataMany(_ context.Context, key string, filter core.Meta, limit int) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.matchLocked(key, filter, false)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteData implements core.DataStore.
func (s *InMemoryStore) DeleteData(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("record %q: %w", id, core.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// matchLocked returns matching records newest first. exact requires equal
// metadata instead of filter semantics. Caller must hold the lock.
func (s *InMemoryStore) matchLocked(key string, meta core.Meta, exact bool) []core.Record {
	var out []core.Record
	for _, r := range s.records {
		if r.Key != key {
			continue
		}
		if exact && r.Meta != meta {
			continue
		}
		if !exact && !r.Meta.Matches(meta) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

func (s *InMemoryStore) newestLocked(key string, meta core.Meta, exact bool) (core.Record, bool) {
	m := s.matchLocked(key, meta, exact)
	if len(m) == 0 {
		return core.Record{}, false
	}
	return m[0], true
}
