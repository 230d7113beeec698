// Package web provides HTTP request and response types for the transaction API.
package web

import (
	"time"

	"github.com/dealflow/dealflow/pkg/models"
)

// CreateTransactionRequest represents the request body for instantiating a
// workflow template into a live transaction.
type CreateTransactionRequest struct {
	WorkflowID      string `json:"workflow_id"      validate:"required"`
	PropertyAddress string `json:"property_address" validate:"required,min=3"`
	TransactionType string `json:"transaction_type" validate:"omitempty,oneof=purchase sale wholesale refinance"`
	ContractDate    string `json:"contract_date"    validate:"omitempty"`
	ClosingDate     string `json:"closing_date"     validate:"omitempty"`
}

// CompleteTaskRequest represents the request body for completing a task.
// Notes, when present, are appended to the task's log.
type CompleteTaskRequest struct {
	Notes string `json:"notes"`
}

// TransitionResponse reports the outcome of a state transition. Changed is
// false when the entity was already in the requested state.
type TransitionResponse struct {
	TransactionID string `json:"transaction_id"`
	EntityID      string `json:"entity_id,omitempty"`
	Changed       bool   `json:"changed"`
}

// TemplateSummary is the list representation of a registered template.
type TemplateSummary struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	TransactionType models.TransactionType `json:"transaction_type"`
	Milestones      int                    `json:"milestones"`
	EstimatedDays   int                    `json:"estimated_days"`
}

// TransformTemplateSummary condenses a template for list endpoints.
func TransformTemplateSummary(template *models.WorkflowTemplate) TemplateSummary {
	days := 0
	for _, m := range template.Milestones {
		days += m.EstimatedDays
	}

	return TemplateSummary{
		ID:              template.ID,
		Name:            template.Name,
		TransactionType: template.TransactionType,
		Milestones:      len(template.Milestones),
		EstimatedDays:   days,
	}
}

// ParseDate accepts RFC 3339 timestamps and bare dates. An empty string
// yields the zero time, which downstream defaulting fills in.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	return time.Parse("2006-01-02", value)
}
