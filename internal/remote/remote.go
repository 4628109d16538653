// Package remote defines the contract the engine holds against the remote
// row store. Adapters live in remote/memory and remote/postgres.
package remote

//go:generate mockgen -source=remote.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"nexops/internal/anomaly/models"
	"nexops/pkg/domain"
)

// Tables as they appear in change-feed events and audit entries.
const (
	TableAnomalies = "anomalies"
	TableShipments = "shipments"
	TableAuditLog  = "audit_log"
)

// AnomalyFilter narrows an anomaly query. Empty slices mean "no constraint".
// Deleted rows are excluded unless IncludeDeleted is set. Results are ordered
// by TriggeredAt descending.
type AnomalyFilter struct {
	IDs             []domain.AnomalyID
	Types           []domain.AnomalyType
	Severities      []domain.Severity
	TriggerSources  []domain.TriggerSource
	EntityIDs       []string
	Statuses        []domain.AnomalyStatus
	ExcludeStatuses []domain.AnomalyStatus
	IncludeDeleted  bool
	Limit           int
}

// StatusUpdate is a status write on one anomaly. When From is set the write
// only lands if the stored status still equals From; otherwise it fails with
// sentinel.ErrInvalidState.
type StatusUpdate struct {
	ID         domain.AnomalyID
	From       domain.AnomalyStatus
	Status     domain.AnomalyStatus
	ActionedBy *string
	At         time.Time
}

// AnomalyRepository is the anomaly half of the remote store.
type AnomalyRepository interface {
	ListAnomalies(ctx context.Context, filter AnomalyFilter) ([]models.Anomaly, error)
	CountAnomalies(ctx context.Context, filter AnomalyFilter) (int, error)
	InsertAnomalies(ctx context.Context, batch []models.NewAnomaly) ([]models.Anomaly, error)
	UpdateAnomalyStatus(ctx context.Context, update StatusUpdate) (*models.Anomaly, error)
}

// ShipmentSnapshot is the read-only shipment view consumed by detection and KPIs.
type ShipmentSnapshot struct {
	ID              string                `json:"id"`
	ReferenceNumber string                `json:"reference_number"`
	CurrentStatus   domain.ShipmentStatus `json:"current_status"`
	ScheduledETA    *time.Time            `json:"scheduled_eta,omitempty"`
	PredictedETA    *time.Time            `json:"predicted_eta,omitempty"`
	CostToServe     *float64              `json:"cost_to_serve,omitempty"`
	CarbonKG        *float64              `json:"carbon_kg,omitempty"`
	DeletedAt       *time.Time            `json:"deleted_at,omitempty"`
}

// ShipmentFilter narrows a shipment query. Deleted rows are always excluded.
type ShipmentFilter struct {
	ExcludeStatuses []domain.ShipmentStatus
	RequireETAs     bool
}

// Matches applies f to one snapshot. Adapters that cannot push the filter
// down use it directly.
func (f ShipmentFilter) Matches(s ShipmentSnapshot) bool {
	if s.DeletedAt != nil {
		return false
	}
	if f.RequireETAs && (s.ScheduledETA == nil || s.PredictedETA == nil) {
		return false
	}
	for _, st := range f.ExcludeStatuses {
		if s.CurrentStatus == st {
			return false
		}
	}
	return true
}

// ShipmentRepository is the shipment half of the remote store.
type ShipmentRepository interface {
	ListShipments(ctx context.Context, filter ShipmentFilter) ([]ShipmentSnapshot, error)
}
