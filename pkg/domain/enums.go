package domain

import dErrors "nexops/pkg/domain-errors"

// Severity ranks how urgently an anomaly needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityWatch    Severity = "watch"
)

// severityRank is the single source of truth for severity ordering; lower sorts first.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityWarning:  1,
	SeverityWatch:    2,
}

// Severities lists every severity in rank order.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityWarning, SeverityWatch}
}

// ParseSeverity constructs a Severity from external input.
func ParseSeverity(s string) (Severity, error) {
	v := Severity(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid severity")
	}
	return v, nil
}

func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the sort rank of s. Unknown severities sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

func (s Severity) String() string { return string(s) }

// AnomalyStatus is the lifecycle state of an anomaly.
type AnomalyStatus string

const (
	StatusOpen          AnomalyStatus = "open"
	StatusInvestigating AnomalyStatus = "investigating"
	StatusResolved      AnomalyStatus = "resolved"
)

// ParseAnomalyStatus constructs an AnomalyStatus from external input.
func ParseAnomalyStatus(s string) (AnomalyStatus, error) {
	v := AnomalyStatus(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid anomaly status")
	}
	return v, nil
}

func (s AnomalyStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

func (s AnomalyStatus) String() string { return string(s) }

// AnomalyType names the kind of operational exception.
type AnomalyType string

const (
	TypeShipmentDelayed AnomalyType = "shipment_delayed"
	TypeDriverOffline   AnomalyType = "driver_offline"
	TypeInvoiceOverdue  AnomalyType = "invoice_overdue"
)

func ParseAnomalyType(s string) (AnomalyType, error) {
	v := AnomalyType(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid anomaly type")
	}
	return v, nil
}

func (t AnomalyType) IsValid() bool {
	switch t {
	case TypeShipmentDelayed, TypeDriverOffline, TypeInvoiceOverdue:
		return true
	}
	return false
}

func (t AnomalyType) String() string { return string(t) }

// EntityType names the kind of record an anomaly points at.
type EntityType string

const (
	EntityShipment EntityType = "shipment"
	EntityDriver   EntityType = "driver"
	EntityInvoice  EntityType = "invoice"
)

func ParseEntityType(s string) (EntityType, error) {
	v := EntityType(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid entity type")
	}
	return v, nil
}

func (e EntityType) IsValid() bool {
	switch e {
	case EntityShipment, EntityDriver, EntityInvoice:
		return true
	}
	return false
}

// Table returns the remote table holding records of this entity type.
func (e EntityType) Table() string {
	switch e {
	case EntityShipment:
		return "shipments"
	case EntityDriver:
		return "drivers"
	case EntityInvoice:
		return "invoices"
	}
	return ""
}

func (e EntityType) String() string { return string(e) }

// TriggerSource records who or what caused an anomaly or a change.
type TriggerSource string

const (
	TriggerAI     TriggerSource = "ai"
	TriggerManual TriggerSource = "manual"
	TriggerSystem TriggerSource = "system"
)

func ParseTriggerSource(s string) (TriggerSource, error) {
	v := TriggerSource(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid trigger source")
	}
	return v, nil
}

func (t TriggerSource) IsValid() bool {
	switch t {
	case TriggerAI, TriggerManual, TriggerSystem:
		return true
	}
	return false
}

func (t TriggerSource) String() string { return string(t) }

// ShipmentStatus is the carrier-reported state of a shipment.
type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelayed   ShipmentStatus = "delayed"
	ShipmentAtRisk    ShipmentStatus = "at_risk"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentCancelled ShipmentStatus = "cancelled"
)

func ParseShipmentStatus(s string) (ShipmentStatus, error) {
	v := ShipmentStatus(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid shipment status")
	}
	return v, nil
}

func (s ShipmentStatus) IsValid() bool {
	switch s {
	case ShipmentPending, ShipmentInTransit, ShipmentDelayed, ShipmentAtRisk, ShipmentDelivered, ShipmentCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the shipment no longer moves.
func (s ShipmentStatus) IsTerminal() bool {
	return s == ShipmentDelivered || s == ShipmentCancelled
}

func (s ShipmentStatus) String() string { return string(s) }
