// Package results accumulates accepted station records for one scrape run.
package results

import (
	"cmp"
	"slices"
	"sync"

	"github.com/sells-group/geocover/internal/model"
)

// Store is a deduplicated map of accepted records keyed by coordinates.
// It is safe for concurrent use; merges are serialized so the last merge of
// a key wins.
type Store struct {
	mu      sync.Mutex
	records map[model.Key]model.PointRecord
	merges  int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[model.Key]model.PointRecord)}
}

// Merge inserts or overwrites records by (lat, lon). Within one call, later
// records overwrite earlier ones with the same key.
func (s *Store) Merge(records ...model.PointRecord) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.Key()] = r
	}
	s.merges++
}

// Get returns the record stored under key.
func (s *Store) Get(key model.Key) (model.PointRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r, ok
}

// Len returns the number of distinct points.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Merges returns how many non-empty Merge calls the store has seen.
func (s *Store) Merges() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merges
}

// Export returns a snapshot of all records ordered by latitude then longitude.
func (s *Store) Export() []model.PointRecord {
	s.mu.Lock()
	out := make([]model.PointRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b model.PointRecord) int {
		if c := cmp.Compare(a.Lat, b.Lat); c != 0 {
			return c
		}
		return cmp.Compare(a.Lon, b.Lon)
	})
	return out
}
