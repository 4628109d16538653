package remote

import (
	"slices"

	"nexops/internal/anomaly/models"
)

// Matches applies f to one anomaly.
func (f AnomalyFilter) Matches(a models.Anomaly) bool {
	if !f.IncludeDeleted && a.IsDeleted() {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, a.ID) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, a.Type) {
		return false
	}
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, a.Severity) {
		return false
	}
	if len(f.TriggerSources) > 0 && !slices.Contains(f.TriggerSources, a.TriggerSource) {
		return false
	}
	if len(f.EntityIDs) > 0 && !slices.Contains(f.EntityIDs, a.EntityID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if slices.Contains(f.ExcludeStatuses, a.Status) {
		return false
	}
	return true
}
