// Package kpi derives dashboard metrics from shipment snapshots.
package kpi

import (
	"time"

	"github.com/shopspring/decimal"

	"nexops/internal/remote"
	"nexops/pkg/domain"
)

// Metrics is one KPI computation. CriticalAnomalies is filled in by Service
// from a separate anomaly count; Compute always leaves it at zero.
type Metrics struct {
	OTIFRate          float64   `json:"otif_rate"`
	OnTimePercentage  float64   `json:"on_time_percentage"`
	AvgCostToServe    float64   `json:"avg_cost_to_serve"`
	TotalCarbonKG     float64   `json:"total_carbon_kg"`
	ActiveShipments   int       `json:"active_shipments"`
	CriticalAnomalies int       `json:"critical_anomalies"`
	ComputedAt        time.Time `json:"computed_at"`
}

var hundred = decimal.NewFromInt(100)

// Compute is pure. Deleted and cancelled shipments are excluded from every
// denominator.
//
// OTIF is collapsed to on-time delivery: there is no partial-fulfilment
// field, so a delivered shipment is "in full" by definition.
func Compute(shipments []remote.ShipmentSnapshot, now time.Time) Metrics {
	var active, delivered, onTimeDelivered, onTime, withCost, inFlight int
	cost, carbon := decimal.Zero, decimal.Zero
	for _, s := range shipments {
		if s.DeletedAt != nil || s.CurrentStatus == domain.ShipmentCancelled {
			continue
		}
		active++
		punctual := isOnTime(s)
		if punctual {
			onTime++
		}
		if s.CurrentStatus == domain.ShipmentDelivered {
			delivered++
			if punctual {
				onTimeDelivered++
			}
		} else {
			inFlight++
		}
		if s.CostToServe != nil {
			withCost++
			cost = cost.Add(decimal.NewFromFloat(*s.CostToServe))
		}
		if s.CarbonKG != nil {
			carbon = carbon.Add(decimal.NewFromFloat(*s.CarbonKG))
		}
	}

	m := Metrics{
		OTIFRate:         percentage(onTimeDelivered, delivered),
		OnTimePercentage: percentage(onTime, active),
		TotalCarbonKG:    carbon.Round(1).InexactFloat64(),
		ActiveShipments:  inFlight,
		ComputedAt:       now,
	}
	if withCost > 0 {
		m.AvgCostToServe = cost.Div(decimal.NewFromInt(int64(withCost))).Round(2).InexactFloat64()
	}
	return m
}

// isOnTime needs both ETAs; predicted equal to scheduled counts as on time.
func isOnTime(s remote.ShipmentSnapshot) bool {
	if s.ScheduledETA == nil || s.PredictedETA == nil {
		return false
	}
	return !s.PredictedETA.After(*s.ScheduledETA)
}

// percentage is part/whole*100 to one decimal place, or 0 for an empty whole.
func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(whole))).
		Round(1).
		InexactFloat64()
}
