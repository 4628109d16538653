// Package audit is the append-only change ledger. Entries are never updated
// or deleted; no store in this package exposes a way to do either.
package audit

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
)

const (
	// GlobalWindow bounds how far back the global view reads.
	GlobalWindow = 24 * time.Hour
	// GlobalLimit caps the global view.
	GlobalLimit = 100
)

// SealFunc receives the current chain head and returns the entry to persist.
type SealFunc func(prevHash string) Entry

// Store persists the ledger. Append must serialize concurrent appends so
// every entry links to exactly one predecessor.
type Store interface {
	Append(ctx context.Context, seal SealFunc) (Entry, error)
	// ListByRecord returns every entry for recordID, newest first.
	ListByRecord(ctx context.Context, recordID string) ([]Entry, error)
	// ListSince returns entries changed at or after since, newest first, capped at limit.
	ListSince(ctx context.Context, since time.Time, limit int) ([]Entry, error)
	// ListChain returns the whole ledger in append order.
	ListChain(ctx context.Context) ([]Entry, error)
}

// Metrics records ledger appends.
type Metrics interface {
	IncrementAppended(source string)
}

// Service appends and reads ledger entries.
type Service struct {
	store   Store
	now     func() time.Time
	logger  *slog.Logger
	metrics Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append validates e, assigns its identity and timestamp, and links it into
// the chain. The stored entry is returned.
func (s *Service) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := validate(e); err != nil {
		return Entry{}, err
	}
	e.ID = domain.NewAuditEntryID()
	// Postgres keeps microseconds; hashing a finer timestamp would not verify after a read.
	e.ChangedAt = s.now().UTC().Truncate(time.Microsecond)

	stored, err := s.store.Append(ctx, func(prevHash string) Entry {
		return Seal(e, prevHash)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			"table_name", e.TableName,
			"record_id", e.RecordID,
			"field_changed", e.FieldChanged,
			"error", err,
		)
		return Entry{}, dErrors.Wrap(err, dErrors.CodeRemoteWrite, "append audit entry")
	}
	if s.metrics != nil {
		s.metrics.IncrementAppended(string(stored.TriggerSource))
	}
	return stored, nil
}

func validate(e Entry) error {
	switch {
	case e.TableName == "":
		return dErrors.New(dErrors.CodeValidation, "audit entry requires a table name")
	case e.RecordID == "":
		return dErrors.New(dErrors.CodeValidation, "audit entry requires a record id")
	case e.FieldChanged == "":
		return dErrors.New(dErrors.CodeValidation, "audit entry requires the changed field")
	case !e.TriggerSource.IsValid():
		return dErrors.New(dErrors.CodeValidation, "audit entry requires a valid trigger source")
	}
	return nil
}

// Scoped returns every entry for one record, newest first.
func (s *Service) Scoped(ctx context.Context, recordID string) ([]Entry, error) {
	if recordID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "record id is required for a scoped audit read")
	}
	entries, err := s.store.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRemoteRead, "list audit entries by record")
	}
	return entries, nil
}

// Global returns entries from the last GlobalWindow, newest first, capped at GlobalLimit.
func (s *Service) Global(ctx context.Context) ([]Entry, error) {
	entries, err := s.store.ListSince(ctx, s.now().Add(-GlobalWindow), GlobalLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRemoteRead, "list recent audit entries")
	}
	return entries, nil
}

// Query dispatches on scope.
func (s *Service) Query(ctx context.Context, scope Scope) ([]Entry, error) {
	if scope.IsGlobal() {
		return s.Global(ctx)
	}
	return s.Scoped(ctx, scope.RecordID)
}

// VerifyChain reads the full ledger and checks every link.
func (s *Service) VerifyChain(ctx context.Context) error {
	chain, err := s.store.ListChain(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeRemoteRead, "list audit chain")
	}
	if err := Verify(chain); err != nil {
		return fmt.Errorf("verify audit chain: %w", err)
	}
	return nil
}
