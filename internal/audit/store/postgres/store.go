package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nexops/internal/audit"
	"nexops/pkg/domain"
	txcontext "nexops/pkg/platform/tx"
)

// chainLockKey serializes appends across processes so each entry links to
// exactly one predecessor.
const chainLockKey int64 = 0x6e65786f7073 // "nexops"

// Store implements audit.Store on the audit_log table. The table rejects
// UPDATE and DELETE with a trigger.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) txcontext.Executor {
	return txcontext.On(ctx, s.db)
}

const entryColumns = `
	seq, id, table_name, record_id, record_label, field_changed,
	old_value, new_value, changed_by_user_id, changed_by_name,
	role_at_time_of_change, trigger_source, trigger_detail,
	changed_at, prev_hash, hash`

// Append locks the chain head for the transaction, seals the entry against
// it and inserts it.
func (s *Store) Append(ctx context.Context, seal audit.SealFunc) (audit.Entry, error) {
	var stored audit.Entry
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		ex := s.execer(ctx)
		if _, err := ex.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
			return fmt.Errorf("lock audit chain: %w", err)
		}

		var prev string
		err := ex.QueryRowContext(ctx, `SELECT hash FROM audit_log ORDER BY seq DESC LIMIT 1`).Scan(&prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read audit chain head: %w", err)
		}

		e := seal(prev)
		query := `
			INSERT INTO audit_log (
				id, table_name, record_id, record_label, field_changed,
				old_value, new_value, changed_by_user_id, changed_by_name,
				role_at_time_of_change, trigger_source, trigger_detail,
				changed_at, prev_hash, hash
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING seq
		`
		err = ex.QueryRowContext(ctx, query,
			uuid.UUID(e.ID),
			e.TableName,
			e.RecordID,
			e.RecordLabel,
			e.FieldChanged,
			e.OldValue,
			e.NewValue,
			e.ChangedByUserID,
			e.ChangedByName,
			e.RoleAtTimeOfChange,
			string(e.TriggerSource),
			e.TriggerDetail,
			e.ChangedAt,
			e.PrevHash,
			e.Hash,
		).Scan(&e.Seq)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		stored = e
		return nil
	})
	if err != nil {
		return audit.Entry{}, err
	}
	return stored, nil
}

func (s *Store) ListByRecord(ctx context.Context, recordID string) ([]audit.Entry, error) {
	query := `SELECT` + entryColumns + `
		FROM audit_log
		WHERE record_id = $1
		ORDER BY changed_at DESC, seq DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries by record: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListSince(ctx context.Context, since time.Time, limit int) ([]audit.Entry, error) {
	query := `SELECT` + entryColumns + `
		FROM audit_log
		WHERE changed_at >= $1
		ORDER BY changed_at DESC, seq DESC
		LIMIT $2`
	rows, err := s.execer(ctx).QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListChain(ctx context.Context) ([]audit.Entry, error) {
	query := `SELECT` + entryColumns + `
		FROM audit_log
		ORDER BY seq ASC`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e      audit.Entry
			id     uuid.UUID
			source string
		)
		err := rows.Scan(
			&e.Seq,
			&id,
			&e.TableName,
			&e.RecordID,
			&e.RecordLabel,
			&e.FieldChanged,
			&e.OldValue,
			&e.NewValue,
			&e.ChangedByUserID,
			&e.ChangedByName,
			&e.RoleAtTimeOfChange,
			&source,
			&e.TriggerDetail,
			&e.ChangedAt,
			&e.PrevHash,
			&e.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = domain.AuditEntryID(id)
		e.TriggerSource = domain.TriggerSource(source)
		e.ChangedAt = e.ChangedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
