// Package models defines the core domain models for transaction workflow management.
package models

import "time"

// TransactionType categorizes the kind of real-estate deal a workflow covers.
type TransactionType string

const (
	TransactionTypePurchase  TransactionType = "purchase"
	TransactionTypeSale      TransactionType = "sale"
	TransactionTypeWholesale TransactionType = "wholesale"
	TransactionTypeRefinance TransactionType = "refinance"
)

// TaskPriority indicates the urgency of a task within a milestone.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// TaskKind describes how a task gets done.
type TaskKind string

const (
	TaskKindManual    TaskKind = "manual"
	TaskKindDocument  TaskKind = "document"
	TaskKindAutomated TaskKind = "automated"
	TaskKindApproval  TaskKind = "approval"
)

// WorkflowTemplate is a reusable definition of the milestones and tasks a
// transaction of a given type moves through. Templates are registered once in
// the catalog and never mutated afterwards.
type WorkflowTemplate struct {
	ID              string               `json:"id"               validate:"required"`
	Name            string               `json:"name"             validate:"required,min=3"`
	Description     string               `json:"description"`
	TransactionType TransactionType      `json:"transaction_type" validate:"required,oneof=purchase sale wholesale refinance"`
	TimelineDays    int                  `json:"timeline_days"    validate:"required,min=1"`
	Milestones      []*MilestoneTemplate `json:"milestones"       validate:"required,min=1,dive"`
	CreatedAt       time.Time            `json:"created_at"`
}

// MilestoneTemplate defines one ordered phase of a workflow template. Order
// values must be unique and contiguous starting at 1; they define the
// sequential gating between phases.
type MilestoneTemplate struct {
	Name            string          `json:"name"           validate:"required"`
	Order           int             `json:"order"          validate:"required,min=1"`
	EstimatedDays   int             `json:"estimated_days" validate:"required,min=1"`
	IsCritical      bool            `json:"is_critical"`
	CanRunParallel  bool            `json:"can_run_parallel"`
	AutoStart       bool            `json:"auto_start"`
	AutoComplete    bool            `json:"auto_complete"`
	DependsOnOrders []int           `json:"depends_on_orders,omitempty"`
	Tasks           []*TaskTemplate `json:"tasks"          validate:"required,min=1,dive"`
}

// TaskTemplate defines one unit of work inside a milestone template.
// DependsOn and Blocks reference sibling task ids within the same milestone
// template; they are translated to instance ids during instantiation.
type TaskTemplate struct {
	ID                 string       `json:"id"       validate:"required"`
	Name               string       `json:"name"     validate:"required"`
	Priority           TaskPriority `json:"priority" validate:"required,oneof=low medium high critical"`
	Kind               TaskKind     `json:"kind"     validate:"required,oneof=manual document automated approval"`
	RequiredDocuments  []string     `json:"required_documents,omitempty"`
	CompletionCriteria []string     `json:"completion_criteria,omitempty"`
	DependsOn          []string     `json:"depends_on,omitempty"`
	Blocks             []string     `json:"blocks,omitempty"`
}
