package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"nexops/internal/audit"
)

// Store keeps the ledger in append order. Entries are copied on the way in and
// out; callers never hold pointers into stored rows.
type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, seal audit.SealFunc) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := ""
	if n := len(s.entries); n > 0 {
		prev = s.entries[n-1].Hash
	}
	e := seal(prev)
	e.Seq = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e.Clone())
	return e, nil
}

func (s *Store) ListByRecord(_ context.Context, recordID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].RecordID == recordID {
			out = append(out, s.entries[i].Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListSince(_ context.Context, since time.Time, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !s.entries[i].ChangedAt.Before(since) {
			out = append(out, s.entries[i].Clone())
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListChain(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// sortNewestFirst orders by ChangedAt descending, then Seq descending.
func sortNewestFirst(entries []audit.Entry) {
	slices.SortStableFunc(entries, func(a, b audit.Entry) int {
		if c := b.ChangedAt.Compare(a.ChangedAt); c != 0 {
			return c
		}
		return int(b.Seq - a.Seq)
	})
}
