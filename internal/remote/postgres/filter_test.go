package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nexops/internal/remote"
	"nexops/pkg/domain"
)

func TestWhereClause(t *testing.T) {
	t.Run("default excludes deleted rows", func(t *testing.T) {
		clause, args, ok := whereClause(remote.AnomalyFilter{})
		assert.True(t, ok)
		assert.Equal(t, " WHERE deleted_at IS NULL", clause)
		assert.Empty(t, args)
	})

	t.Run("include deleted with no constraints", func(t *testing.T) {
		clause, _, ok := whereClause(remote.AnomalyFilter{IncludeDeleted: true})
		assert.True(t, ok)
		assert.Empty(t, clause)
	})

	t.Run("dedup query numbers placeholders in order", func(t *testing.T) {
		clause, args, ok := whereClause(remote.AnomalyFilter{
			Types:           []domain.AnomalyType{domain.TypeShipmentDelayed},
			TriggerSources:  []domain.TriggerSource{domain.TriggerAI},
			EntityIDs:       []string{"s1", "s2"},
			ExcludeStatuses: []domain.AnomalyStatus{domain.StatusResolved},
		})
		assert.True(t, ok)
		assert.Equal(t, " WHERE anomaly_type = ANY($1) AND trigger_source = ANY($2)"+
			" AND entity_id = ANY($3) AND NOT (status = ANY($4)) AND deleted_at IS NULL", clause)
		assert.Len(t, args, 4)
	})

	t.Run("provisional ids never reach the database", func(t *testing.T) {
		_, _, ok := whereClause(remote.AnomalyFilter{IDs: []domain.AnomalyID{"optimistic-1"}})
		assert.False(t, ok)
	})
}
