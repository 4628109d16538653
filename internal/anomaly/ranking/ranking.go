// Package ranking orders anomalies for action queues.
//
// Order: severity rank (critical, warning, watch), then TriggeredAt newest
// first, then ID ascending so equal timestamps still sort deterministically.
package ranking

import (
	"slices"
	"strings"

	"nexops/internal/anomaly/models"
	"nexops/pkg/domain"
)

// Compare is the total order used by Rank.
func Compare(a, b models.Anomaly) int {
	if d := a.Severity.Rank() - b.Severity.Rank(); d != 0 {
		return d
	}
	if c := b.TriggeredAt.Compare(a.TriggeredAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

// Rank returns a ranked copy of in. The input is never modified.
func Rank(in []models.Anomaly) []models.Anomaly {
	out := slices.Clone(in)
	slices.SortStableFunc(out, Compare)
	return out
}

// IsRanked reports whether in already satisfies the ranking order.
func IsRanked(in []models.Anomaly) bool {
	return slices.IsSortedFunc(in, Compare)
}

// Active keeps anomalies that are not deleted, not resolved and whose
// severity is in allow, then ranks them.
func Active(in []models.Anomaly, allow []domain.Severity) []models.Anomaly {
	out := make([]models.Anomaly, 0, len(in))
	for _, a := range in {
		if a.IsActive() && slices.Contains(allow, a.Severity) {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, Compare)
	return out
}
