package httptransport

import (
	"time"

	"nexops/internal/anomaly/detector"
	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/mutation"
	"nexops/internal/audit"
	"nexops/internal/syncstate"
)

// AnomalyResponse is an anomaly with its rendered summary.
type AnomalyResponse struct {
	models.Anomaly
	Description string `json:"description"`
	TimeDelta   string `json:"time_delta,omitempty"`
}

func fromAnomaly(a models.Anomaly) AnomalyResponse {
	resp := AnomalyResponse{Anomaly: a, Description: models.Describe(a)}
	if a.TimeDeltaMinutes != nil {
		resp.TimeDelta = models.FormatTimeDelta(*a.TimeDeltaMinutes)
	}
	return resp
}

func fromAnomalies(in []models.Anomaly) []AnomalyResponse {
	out := make([]AnomalyResponse, 0, len(in))
	for _, a := range in {
		out = append(out, fromAnomaly(a))
	}
	return out
}

type AnomalyListResponse struct {
	Role      string            `json:"role"`
	Anomalies []AnomalyResponse `json:"anomalies"`
}

type TransitionResponse struct {
	Anomaly    AnomalyResponse `json:"anomaly"`
	AuditEntry *audit.Entry    `json:"audit_entry,omitempty"`
}

type ScanResponse struct {
	Candidates int               `json:"candidates"`
	Breaches   int               `json:"breaches"`
	Skipped    int               `json:"skipped"`
	Inserted   []AnomalyResponse `json:"inserted"`
}

func fromScan(r *detector.Result) ScanResponse {
	return ScanResponse{
		Candidates: r.Candidates,
		Breaches:   r.Breaches,
		Skipped:    r.Skipped,
		Inserted:   fromAnomalies(r.Inserted),
	}
}

// AuditLogResponse carries the entries plus the table facets of the result.
type AuditLogResponse struct {
	Scope   string        `json:"scope"`
	Tables  []string      `json:"tables"`
	Entries []audit.Entry `json:"entries"`
}

type PendingMutationResponse struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Scope    string    `json:"scope"`
	IssuedAt time.Time `json:"issued_at"`
}

func fromCommands(in []mutation.Command) []PendingMutationResponse {
	out := make([]PendingMutationResponse, 0, len(in))
	for _, c := range in {
		out = append(out, PendingMutationResponse{
			ID:       c.ID.String(),
			Label:    c.Label,
			Scope:    string(c.Scope),
			IssuedAt: c.IssuedAt,
		})
	}
	return out
}

type SyncResponse struct {
	syncstate.State
	Pending []PendingMutationResponse `json:"pending"`
}
