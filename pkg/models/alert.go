package models

import "time"

// AlertKind distinguishes timeline alerts (progress behind schedule) from
// deadline alerts (tasks missed or about to miss their due date).
type AlertKind string

const (
	AlertKindTimeline AlertKind = "timeline"
	AlertKindDeadline AlertKind = "deadline"
)

// AlertSeverity scales with how much attention an alert needs.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is an emitted notice describing a risk needing attention on a
// transaction. Delivery (email/SMS/push) is the alert sink's problem.
type Alert struct {
	ID               string        `json:"id"`
	TransactionID    string        `json:"transaction_id"`
	Kind             AlertKind     `json:"kind"`
	Severity         AlertSeverity `json:"severity"`
	Title            string        `json:"title"`
	Message          string        `json:"message"`
	SuggestedActions []string      `json:"suggested_actions,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        *time.Time    `json:"expires_at,omitempty"`
}
