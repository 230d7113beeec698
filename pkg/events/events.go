// Package events defines event types for transaction lifecycle notifications.
package events

import (
	"time"

	"github.com/dealflow/dealflow/pkg/models"
)

type EventType string

// Topic carries every transaction lifecycle event and alert.
const Topic = "dealflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TransactionCreatedEvent   EventType = "transaction.created"
	TransactionCancelledEvent EventType = "transaction.cancelled"
	MilestoneStartedEvent     EventType = "milestone.started"
	MilestoneCompletedEvent   EventType = "milestone.completed"
	TaskCompletedEvent        EventType = "task.completed"
	AlertRaisedEvent          EventType = "alert.raised"
)

type BaseEvent struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	TransactionID string         `json:"transaction_id"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type TransactionCreated struct {
	BaseEvent

	WorkflowID      string                 `json:"workflow_id"`
	PropertyAddress string                 `json:"property_address"`
	TransactionType models.TransactionType `json:"transaction_type"`
	ClosingDate     time.Time              `json:"closing_date"`
}

func (t TransactionCreated) GetType() EventType {
	return TransactionCreatedEvent
}

type TransactionCancelled struct {
	BaseEvent

	CancelledMilestones int `json:"cancelled_milestones"`
	CancelledTasks      int `json:"cancelled_tasks"`
}

func (t TransactionCancelled) GetType() EventType {
	return TransactionCancelledEvent
}

type MilestoneStarted struct {
	BaseEvent

	MilestoneID   string    `json:"milestone_id"`
	MilestoneName string    `json:"milestone_name"`
	TargetDate    time.Time `json:"target_date"`
}

func (m MilestoneStarted) GetType() EventType {
	return MilestoneStartedEvent
}

type MilestoneCompleted struct {
	BaseEvent

	MilestoneID     string  `json:"milestone_id"`
	MilestoneName   string  `json:"milestone_name"`
	OverallProgress float64 `json:"overall_progress"`
}

func (m MilestoneCompleted) GetType() EventType {
	return MilestoneCompletedEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskID      string `json:"task_id"`
	TaskName    string `json:"task_name"`
	MilestoneID string `json:"milestone_id"`
	Notes       string `json:"notes,omitempty"`
}

func (t TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

// AlertRaised wraps an alert for delivery through the event bus. The bus is
// the alert sink; downstream consumers handle email/SMS/push delivery.
type AlertRaised struct {
	BaseEvent

	Alert *models.Alert `json:"alert"`
}

func (a AlertRaised) GetType() EventType {
	return AlertRaisedEvent
}
