package models

import (
	"time"

	"nexops/pkg/domain"
)

// Anomaly is a detected operational exception tied to one entity.
// Invariants: ID is unique; ActionedAt is set whenever Status has moved past open
// through a manual transition; DeletedAt marks soft deletion.
type Anomaly struct {
	ID               domain.AnomalyID     `json:"id"`
	Type             domain.AnomalyType   `json:"anomaly_type"`
	Severity         domain.Severity      `json:"severity"`
	EntityType       domain.EntityType    `json:"entity_type"`
	EntityID         string               `json:"entity_id"`
	EntityLabel      string               `json:"entity_label"`
	TimeDeltaMinutes *int                 `json:"time_delta_minutes,omitempty"`
	TriggerSource    domain.TriggerSource `json:"trigger_source"`
	Status           domain.AnomalyStatus `json:"status"`
	TriggeredAt      time.Time            `json:"triggered_at"`
	ActionedBy       *string              `json:"actioned_by,omitempty"`
	ActionedAt       *time.Time           `json:"actioned_at,omitempty"`
	UpdatedAt        time.Time            `json:"updated_at"`
	DeletedAt        *time.Time           `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the anomaly is soft-deleted.
func (a Anomaly) IsDeleted() bool {
	return a.DeletedAt != nil
}

// IsActive reports whether the anomaly belongs in an action queue.
func (a Anomaly) IsActive() bool {
	return !a.IsDeleted() && a.Status != domain.StatusResolved
}

// Clone returns a deep copy so cache snapshots never alias live pointers.
func (a Anomaly) Clone() Anomaly {
	out := a
	if a.TimeDeltaMinutes != nil {
		v := *a.TimeDeltaMinutes
		out.TimeDeltaMinutes = &v
	}
	if a.ActionedBy != nil {
		v := *a.ActionedBy
		out.ActionedBy = &v
	}
	if a.ActionedAt != nil {
		v := *a.ActionedAt
		out.ActionedAt = &v
	}
	if a.DeletedAt != nil {
		v := *a.DeletedAt
		out.DeletedAt = &v
	}
	return out
}

// CloneAll deep-copies a sequence. A nil input stays nil.
func CloneAll(in []Anomaly) []Anomaly {
	if in == nil {
		return nil
	}
	out := make([]Anomaly, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// NewAnomaly is the insert payload for an anomaly. The store assigns ID,
// Status (open) and timestamps.
type NewAnomaly struct {
	Type             domain.AnomalyType   `json:"anomaly_type" validate:"required,oneof=shipment_delayed driver_offline invoice_overdue"`
	Severity         domain.Severity      `json:"severity" validate:"required,oneof=critical warning watch"`
	EntityType       domain.EntityType    `json:"entity_type" validate:"required,oneof=shipment driver invoice"`
	EntityID         string               `json:"entity_id" validate:"required,max=128"`
	EntityLabel      string               `json:"entity_label" validate:"required,max=256"`
	TimeDeltaMinutes *int                 `json:"time_delta_minutes,omitempty" validate:"omitempty,min=0"`
	TriggerSource    domain.TriggerSource `json:"trigger_source" validate:"required,oneof=ai manual system"`
}

// Provisional materializes the optimistic view of n at t: a placeholder ID,
// status open, triggered now.
func (n NewAnomaly) Provisional(t time.Time) Anomaly {
	return n.Materialize(domain.ProvisionalAnomalyID(t), t)
}

// Materialize builds the stored record for n under id.
func (n NewAnomaly) Materialize(id domain.AnomalyID, t time.Time) Anomaly {
	a := Anomaly{
		ID:            id,
		Type:          n.Type,
		Severity:      n.Severity,
		EntityType:    n.EntityType,
		EntityID:      n.EntityID,
		EntityLabel:   n.EntityLabel,
		TriggerSource: n.TriggerSource,
		Status:        domain.StatusOpen,
		TriggeredAt:   t,
		UpdatedAt:     t,
	}
	if n.TimeDeltaMinutes != nil {
		v := *n.TimeDeltaMinutes
		a.TimeDeltaMinutes = &v
	}
	return a
}
