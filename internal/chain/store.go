package chain

import (
	"sort"
	"sync"
)

// Store holds the current full row set. The feed sends complete
// snapshots, not deltas, so the only mutation is a wholesale swap;
// readers always see either the pre- or post-frame set, never a mix.
type Store struct {
	mu   sync.RWMutex
	rows []OptionRow
}

func NewStore() *Store {
	return &Store{}
}

// Replace atomically swaps the active row set.
func (s *Store) Replace(rows []OptionRow) {
	copied := make([]OptionRow, len(rows))
	copy(copied, rows)

	s.mu.Lock()
	s.rows = copied
	s.mu.Unlock()
}

// Rows returns a copy of the active row set in insertion order.
func (s *Store) Rows() []OptionRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]OptionRow, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Expiries returns the distinct expiry tokens sorted ascending. Expiry
// tokens are ISO date strings, so lexicographic order is chronological.
func (s *Store) Expiries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var expiries []string
	for i := range s.rows {
		exp := s.rows[i].ExpiryDate
		if !seen[exp] {
			seen[exp] = true
			expiries = append(expiries, exp)
		}
	}
	sort.Strings(expiries)
	return expiries
}

// Latest returns the timestamp and underlying value of the row with the
// maximum parsed instant. Ties keep the first occurrence in insertion
// order. Reports false when the store is empty.
func (s *Store) Latest() (LatestMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return LatestMeta{}, false
	}

	best := &s.rows[0]
	bestMS, _ := ParseInstant(best.Timestamp)
	for i := 1; i < len(s.rows); i++ {
		ms, err := ParseInstant(s.rows[i].Timestamp)
		if err != nil {
			continue
		}
		if ms > bestMS {
			best = &s.rows[i]
			bestMS = ms
		}
	}
	return LatestMeta{Timestamp: best.Timestamp, UnderlyingValue: best.UnderlyingValue}, true
}
