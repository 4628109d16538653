package memory

import (
	"context"
	"sync"
	"time"

	"nexops/internal/outbox"
)

// Store is an in-process outbox used by tests and the single-node setup.
type Store struct {
	mu      sync.Mutex
	records []outbox.Record
	now     func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

func (s *Store) Append(_ context.Context, rec outbox.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Dispatch holds the store lock while fn runs, so concurrent relays never
// see the same record.
func (s *Store) Dispatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []outbox.Record) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx []int
	for i, rec := range s.records {
		if rec.PublishedAt == nil {
			idx = append(idx, i)
			if len(idx) == limit {
				break
			}
		}
	}
	if len(idx) == 0 {
		return 0, nil
	}

	batch := make([]outbox.Record, len(idx))
	for i, j := range idx {
		batch[i] = s.records[j]
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	at := s.now()
	for _, j := range idx {
		s.records[j].PublishedAt = &at
	}
	return len(idx), nil
}

// Pending counts records not yet relayed.
func (s *Store) Pending(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, rec := range s.records {
		if rec.PublishedAt == nil {
			n++
		}
	}
	return n, nil
}
