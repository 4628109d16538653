// Package postgres implements the remote store contract on PostgreSQL.
//
// Writes run in a transaction; when a publisher is configured the change
// event is handed to it inside that transaction, so an outbox publisher
// commits or rolls back together with the row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"nexops/internal/anomaly/models"
	"nexops/internal/feed"
	"nexops/internal/remote"
	"nexops/pkg/domain"
	"nexops/pkg/platform/sentinel"
	txcontext "nexops/pkg/platform/tx"
)

type Store struct {
	db        *sql.DB
	publisher feed.Publisher
	now       func() time.Time
}

type Option func(*Store)

// WithPublisher receives a change event per written row, inside the write's
// transaction.
func WithPublisher(p feed.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) execer(ctx context.Context) txcontext.Executor {
	return txcontext.On(ctx, s.db)
}

const anomalyColumns = `
	id, anomaly_type, severity, entity_type, entity_id, entity_label,
	time_delta_minutes, trigger_source, status, triggered_at,
	actioned_by, actioned_at, updated_at, deleted_at`

// whereClause renders f as SQL predicates with positional arguments.
// ok is false when f can match nothing.
func whereClause(f remote.AnomalyFilter) (clause string, args []any, ok bool) {
	var preds []string
	add := func(pred string, arg any) {
		args = append(args, arg)
		preds = append(preds, fmt.Sprintf(pred, len(args)))
	}

	if len(f.IDs) > 0 {
		ids := make([]string, 0, len(f.IDs))
		for _, id := range f.IDs {
			if !id.IsProvisional() {
				ids = append(ids, id.String())
			}
		}
		if len(ids) == 0 {
			return "", nil, false
		}
		add("id = ANY($%d::uuid[])", pq.Array(ids))
	}
	if len(f.Types) > 0 {
		add("anomaly_type = ANY($%d)", pq.Array(strs(f.Types)))
	}
	if len(f.Severities) > 0 {
		add("severity = ANY($%d)", pq.Array(strs(f.Severities)))
	}
	if len(f.TriggerSources) > 0 {
		add("trigger_source = ANY($%d)", pq.Array(strs(f.TriggerSources)))
	}
	if len(f.EntityIDs) > 0 {
		add("entity_id = ANY($%d)", pq.Array(f.EntityIDs))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", pq.Array(strs(f.Statuses)))
	}
	if len(f.ExcludeStatuses) > 0 {
		add("NOT (status = ANY($%d))", pq.Array(strs(f.ExcludeStatuses)))
	}
	if !f.IncludeDeleted {
		preds = append(preds, "deleted_at IS NULL")
	}
	if len(preds) == 0 {
		return "", args, true
	}
	return " WHERE " + strings.Join(preds, " AND "), args, true
}

func strs[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func (s *Store) ListAnomalies(ctx context.Context, filter remote.AnomalyFilter) ([]models.Anomaly, error) {
	where, args, ok := whereClause(filter)
	if !ok {
		return []models.Anomaly{}, nil
	}
	query := `SELECT` + anomalyColumns + ` FROM anomalies` + where + ` ORDER BY triggered_at DESC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()
	return scanAnomalies(rows)
}

func (s *Store) CountAnomalies(ctx context.Context, filter remote.AnomalyFilter) (int, error) {
	where, args, ok := whereClause(filter)
	if !ok {
		return 0, nil
	}
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM anomalies`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}
	return n, nil
}

// InsertAnomalies inserts the batch in one transaction.
func (s *Store) InsertAnomalies(ctx context.Context, batch []models.NewAnomaly) ([]models.Anomaly, error) {
	now := s.now().UTC().Truncate(time.Microsecond)
	inserted := make([]models.Anomaly, 0, len(batch))
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		ex := s.execer(ctx)
		query := `
			INSERT INTO anomalies (
				id, anomaly_type, severity, entity_type, entity_id, entity_label,
				time_delta_minutes, trigger_source, status, triggered_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		`
		for _, n := range batch {
			a := n.Materialize(domain.NewAnomalyID(), now)
			_, err := ex.ExecContext(ctx, query,
				a.ID.String(),
				string(a.Type),
				string(a.Severity),
				string(a.EntityType),
				a.EntityID,
				a.EntityLabel,
				a.TimeDeltaMinutes,
				string(a.TriggerSource),
				string(a.Status),
				a.TriggeredAt,
			)
			if err != nil {
				return fmt.Errorf("insert anomaly for %s: %w", a.EntityID, err)
			}
			if err := s.publish(ctx, remote.TableAnomalies, feed.OpInsert, a.ID.String()); err != nil {
				return err
			}
			inserted = append(inserted, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *Store) UpdateAnomalyStatus(ctx context.Context, update remote.StatusUpdate) (*models.Anomaly, error) {
	if update.ID.IsProvisional() {
		return nil, fmt.Errorf("update anomaly %s: %w", update.ID, sentinel.ErrNotFound)
	}
	at := update.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC().Truncate(time.Microsecond)

	var updated models.Anomaly
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		query := `
			UPDATE anomalies
			SET status = $2, actioned_by = $3, actioned_at = $4, updated_at = $4
			WHERE id = $1 AND deleted_at IS NULL AND ($5::text = '' OR status = $5::text)
			RETURNING` + anomalyColumns
		rows, err := s.execer(ctx).QueryContext(ctx, query, update.ID.String(), string(update.Status), update.ActionedBy, at, string(update.From))
		if err != nil {
			return fmt.Errorf("update anomaly status: %w", err)
		}
		found, err := scanAnomalies(rows)
		rows.Close()
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return s.missedUpdate(ctx, update)
		}
		updated = found[0]
		return s.publish(ctx, remote.TableAnomalies, feed.OpUpdate, updated.ID.String())
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// missedUpdate explains an UPDATE that matched no row: the anomaly is gone, or
// its status moved away from update.From.
func (s *Store) missedUpdate(ctx context.Context, update remote.StatusUpdate) error {
	var status string
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT status FROM anomalies WHERE id = $1 AND deleted_at IS NULL`,
		update.ID.String()).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("update anomaly %s: %w", update.ID, sentinel.ErrNotFound)
	case err != nil:
		return fmt.Errorf("read anomaly status: %w", err)
	}
	return fmt.Errorf("update anomaly %s: status is %s, not %s: %w", update.ID, status, update.From, sentinel.ErrInvalidState)
}

// SoftDeleteAnomaly sets deleted_at. Deleted rows drop out of every default read.
func (s *Store) SoftDeleteAnomaly(ctx context.Context, id domain.AnomalyID) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx,
			`UPDATE anomalies SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
			id.String(), s.now().UTC())
		if err != nil {
			return fmt.Errorf("soft delete anomaly: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("soft delete anomaly %s: %w", id, sentinel.ErrNotFound)
		}
		return s.publish(ctx, remote.TableAnomalies, feed.OpUpdate, id.String())
	})
}

func (s *Store) ListShipments(ctx context.Context, filter remote.ShipmentFilter) ([]remote.ShipmentSnapshot, error) {
	preds := []string{"deleted_at IS NULL"}
	var args []any
	if filter.RequireETAs {
		preds = append(preds, "scheduled_eta IS NOT NULL", "predicted_eta IS NOT NULL")
	}
	if len(filter.ExcludeStatuses) > 0 {
		args = append(args, pq.Array(strs(filter.ExcludeStatuses)))
		preds = append(preds, fmt.Sprintf("NOT (current_status = ANY($%d))", len(args)))
	}
	query := `
		SELECT id, reference_number, current_status, scheduled_eta, predicted_eta,
			cost_to_serve::float8, carbon_kg::float8, deleted_at
		FROM shipments
		WHERE ` + strings.Join(preds, " AND ") + `
		ORDER BY id ASC`
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shipments: %w", err)
	}
	defer rows.Close()

	out := make([]remote.ShipmentSnapshot, 0)
	for rows.Next() {
		var (
			sh     remote.ShipmentSnapshot
			status string
		)
		if err := rows.Scan(
			&sh.ID,
			&sh.ReferenceNumber,
			&status,
			&sh.ScheduledETA,
			&sh.PredictedETA,
			&sh.CostToServe,
			&sh.CarbonKG,
			&sh.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		sh.CurrentStatus = domain.ShipmentStatus(status)
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipments: %w", err)
	}
	return out, nil
}

// UpsertShipment writes a shipment snapshot as received from telemetry.
func (s *Store) UpsertShipment(ctx context.Context, sh remote.ShipmentSnapshot) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		query := `
			INSERT INTO shipments (
				id, reference_number, current_status, scheduled_eta, predicted_eta,
				cost_to_serve, carbon_kg, deleted_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				reference_number = EXCLUDED.reference_number,
				current_status   = EXCLUDED.current_status,
				scheduled_eta    = EXCLUDED.scheduled_eta,
				predicted_eta    = EXCLUDED.predicted_eta,
				cost_to_serve    = EXCLUDED.cost_to_serve,
				carbon_kg        = EXCLUDED.carbon_kg,
				deleted_at       = EXCLUDED.deleted_at
		`
		_, err := s.execer(ctx).ExecContext(ctx, query,
			sh.ID,
			sh.ReferenceNumber,
			string(sh.CurrentStatus),
			sh.ScheduledETA,
			sh.PredictedETA,
			sh.CostToServe,
			sh.CarbonKG,
			sh.DeletedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert shipment %s: %w", sh.ID, err)
		}
		return s.publish(ctx, remote.TableShipments, feed.OpUpdate, sh.ID)
	})
}

func (s *Store) publish(ctx context.Context, table string, op feed.Op, recordID string) error {
	if s.publisher == nil {
		return nil
	}
	err := s.publisher.Publish(ctx, feed.Event{Table: table, Op: op, RecordID: recordID, ReceivedAt: s.now()})
	if err != nil {
		return fmt.Errorf("publish %s %s: %w", table, op, err)
	}
	return nil
}

func scanAnomalies(rows *sql.Rows) ([]models.Anomaly, error) {
	out := make([]models.Anomaly, 0)
	for rows.Next() {
		var (
			a                                   models.Anomaly
			id, typ, sev, entityType, src, stat string
			delta                               sql.NullInt64
		)
		err := rows.Scan(
			&id,
			&typ,
			&sev,
			&entityType,
			&a.EntityID,
			&a.EntityLabel,
			&delta,
			&src,
			&stat,
			&a.TriggeredAt,
			&a.ActionedBy,
			&a.ActionedAt,
			&a.UpdatedAt,
			&a.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		a.ID = domain.AnomalyID(id)
		a.Type = domain.AnomalyType(typ)
		a.Severity = domain.Severity(sev)
		a.EntityType = domain.EntityType(entityType)
		a.TriggerSource = domain.TriggerSource(src)
		a.Status = domain.AnomalyStatus(stat)
		if delta.Valid {
			v := int(delta.Int64)
			a.TimeDeltaMinutes = &v
		}
		a.TriggeredAt = a.TriggeredAt.UTC()
		a.UpdatedAt = a.UpdatedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomalies: %w", err)
	}
	return out, nil
}
