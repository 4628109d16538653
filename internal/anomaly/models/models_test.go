package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexops/pkg/domain"
)

func TestFormatTimeDelta(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "just now"},
		{45, "45 min"},
		{60, "1 hr"},
		{90, "1 hr 30 min"},
		{1439, "23 hr 59 min"},
		{1440, "1 day"},
		{4320, "3 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimeDelta(tt.minutes), "minutes=%d", tt.minutes)
	}
}

func TestDescribe(t *testing.T) {
	delta := 90
	a := Anomaly{Type: domain.TypeShipmentDelayed, EntityLabel: "Shipment #SHP-1", TimeDeltaMinutes: &delta}
	assert.Equal(t, "Shipment #SHP-1 is delayed (1 hr 30 min)", Describe(a))

	a = Anomaly{Type: domain.TypeDriverOffline, EntityLabel: "Driver K. Osei"}
	assert.Equal(t, "Driver K. Osei has been offline", Describe(a))

	a = Anomaly{Type: domain.TypeInvoiceOverdue, EntityLabel: "Invoice INV-9"}
	assert.Equal(t, "Invoice INV-9 is overdue", Describe(a))
}

func TestClone_DoesNotAlias(t *testing.T) {
	delta := 61
	by := "user-1"
	at := time.Now()
	orig := Anomaly{ID: "a", TimeDeltaMinutes: &delta, ActionedBy: &by, ActionedAt: &at}

	cp := orig.Clone()
	*cp.TimeDeltaMinutes = 5
	*cp.ActionedBy = "someone-else"

	assert.Equal(t, 61, *orig.TimeDeltaMinutes)
	assert.Equal(t, "user-1", *orig.ActionedBy)
	assert.Equal(t, orig.ActionedAt.UnixNano(), cp.ActionedAt.UnixNano())
	assert.Nil(t, CloneAll(nil))
}

func TestNewAnomaly_Provisional(t *testing.T) {
	delta := 75
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := NewAnomaly{
		Type:             domain.TypeShipmentDelayed,
		Severity:         domain.SeverityWatch,
		EntityType:       domain.EntityShipment,
		EntityID:         "s-1",
		EntityLabel:      "Shipment #SHP-1",
		TimeDeltaMinutes: &delta,
		TriggerSource:    domain.TriggerAI,
	}

	a := n.Provisional(at)
	require.True(t, a.ID.IsProvisional())
	assert.Equal(t, domain.StatusOpen, a.Status)
	assert.Equal(t, at, a.TriggeredAt)
	assert.True(t, a.IsActive())

	*n.TimeDeltaMinutes = 1
	assert.Equal(t, 75, *a.TimeDeltaMinutes)

	twin := n.Provisional(at)
	assert.NotEqual(t, a.ID, twin.ID, "inserts stamped with the same request time stay distinct")
}

func TestIsActive(t *testing.T) {
	now := time.Now()
	assert.False(t, Anomaly{Status: domain.StatusResolved}.IsActive())
	assert.False(t, Anomaly{Status: domain.StatusOpen, DeletedAt: &now}.IsActive())
	assert.True(t, Anomaly{Status: domain.StatusInvestigating}.IsActive())
}
