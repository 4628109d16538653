package httptransport

import (
	"strings"

	"nexops/internal/anomaly/models"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/validation"
)

// TransitionRequest is the body of POST /anomalies/{id}/transitions.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`

	parsedStatus domain.AnomalyStatus
}

// Validate implements httputil.Validatable.
func (r *TransitionRequest) Validate() error {
	if err := validation.Struct(r); err != nil {
		return err
	}
	status, err := domain.ParseAnomalyStatus(strings.TrimSpace(r.Status))
	if err != nil {
		return err
	}
	r.parsedStatus = status
	return nil
}

// CreateAnomalyRequest is the body of POST /anomalies. The trigger source
// defaults to manual.
type CreateAnomalyRequest struct {
	AnomalyType      string `json:"anomaly_type" validate:"required"`
	Severity         string `json:"severity" validate:"required"`
	EntityType       string `json:"entity_type" validate:"required"`
	EntityID         string `json:"entity_id" validate:"required,max=128"`
	EntityLabel      string `json:"entity_label" validate:"required,max=256"`
	TimeDeltaMinutes *int   `json:"time_delta_minutes,omitempty" validate:"omitempty,min=0"`
	TriggerSource    string `json:"trigger_source,omitempty"`

	parsed models.NewAnomaly
}

func (r *CreateAnomalyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.EntityID = strings.TrimSpace(r.EntityID)
	r.EntityLabel = strings.TrimSpace(r.EntityLabel)
	if err := validation.Struct(r); err != nil {
		return err
	}

	typ, err := domain.ParseAnomalyType(r.AnomalyType)
	if err != nil {
		return err
	}
	sev, err := domain.ParseSeverity(r.Severity)
	if err != nil {
		return err
	}
	entity, err := domain.ParseEntityType(r.EntityType)
	if err != nil {
		return err
	}
	source := domain.TriggerManual
	if r.TriggerSource != "" {
		if source, err = domain.ParseTriggerSource(r.TriggerSource); err != nil {
			return err
		}
	}

	r.parsed = models.NewAnomaly{
		Type:             typ,
		Severity:         sev,
		EntityType:       entity,
		EntityID:         r.EntityID,
		EntityLabel:      r.EntityLabel,
		TimeDeltaMinutes: r.TimeDeltaMinutes,
		TriggerSource:    source,
	}
	return nil
}
