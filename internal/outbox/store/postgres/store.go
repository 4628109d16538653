package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"nexops/internal/outbox"
	txcontext "nexops/pkg/platform/tx"
)

// Store keeps outbox records in the outbox table. Dispatch locks its batch
// with SKIP LOCKED so several relays can drain the table concurrently.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) execer(ctx context.Context) txcontext.Executor {
	return txcontext.On(ctx, s.db)
}

// Append joins the caller's transaction when one is on ctx.
func (s *Store) Append(ctx context.Context, rec outbox.Record) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, rec.Payload, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

func (s *Store) Dispatch(ctx context.Context, limit int, fn func(ctx context.Context, batch []outbox.Record) error) (int, error) {
	var published int
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		batch, err := s.claim(ctx, limit)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(ctx, batch); err != nil {
			return err
		}

		ids := make([]string, len(batch))
		for i, rec := range batch {
			ids[i] = rec.ID.String()
		}
		_, err = s.execer(ctx).ExecContext(ctx,
			`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
			s.now(), pq.Array(ids))
		if err != nil {
			return fmt.Errorf("mark outbox records published: %w", err)
		}
		published = len(batch)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (s *Store) claim(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox records: %w", err)
	}
	defer rows.Close()

	var batch []outbox.Record
	for rows.Next() {
		var (
			rec outbox.Record
			id  uuid.UUID
		)
		if err := rows.Scan(&id, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		rec.ID = id
		batch = append(batch, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox records: %w", err)
	}
	return batch, nil
}

// Pending counts records not yet relayed.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox records: %w", err)
	}
	return n, nil
}
