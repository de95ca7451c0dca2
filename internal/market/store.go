package market

import (
	"slices"
	"sync"

	"github.com/gramseva/marketfeed/internal/model"
)

// Store is the keyed table of current price records.
// Insertion order is retained so snapshots with equal timestamps are stable.
type Store struct {
	mu      sync.RWMutex
	records map[string]model.PriceRecord
	order   []string
}

// NewStore creates a store holding the given records.
func NewStore(records ...model.PriceRecord) *Store {
	s := &Store{records: make(map[string]model.PriceRecord, len(records))}
	for _, r := range records {
		s.putLocked(r)
	}
	return s
}

// Get returns the record stored under key.
func (s *Store) Get(key string) (model.PriceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key]
	return r, ok
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns a copy of every record, most recent timestamp first.
func (s *Store) Snapshot() []model.PriceRecord {
	s.mu.RLock()
	out := make([]model.PriceRecord, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key])
	}
	s.mu.RUnlock()

	sortByTimestampDesc(out)
	return out
}

// apply mutates every existing record with fn and then inserts the new
// records, all under one write lock. It returns the records touched, existing
// keys first in insertion order.
func (s *Store) apply(fn func(model.PriceRecord) model.PriceRecord, inserts []model.PriceRecord) []model.PriceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]model.PriceRecord, 0, len(s.order)+len(inserts))
	for _, key := range s.order {
		next := fn(s.records[key])
		s.records[key] = next
		changed = append(changed, next)
	}
	for _, r := range inserts {
		s.putLocked(r)
		changed = append(changed, r)
	}
	return changed
}

func (s *Store) putLocked(r model.PriceRecord) {
	key := r.Key()
	if _, exists := s.records[key]; !exists {
		s.order = append(s.order, key)
	}
	s.records[key] = r
}

func sortByTimestampDesc(records []model.PriceRecord) {
	slices.SortStableFunc(records, func(a, b model.PriceRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
