package models

import "time"

// TransactionStatus represents the lifecycle stage of a transaction. The
// stage is derived from overall progress and never assigned directly by
// callers.
type TransactionStatus string

const (
	TransactionStatusNew                TransactionStatus = "new"
	TransactionStatusUnderContract      TransactionStatus = "under_contract"
	TransactionStatusDueDiligence       TransactionStatus = "due_diligence"
	TransactionStatusFinancing          TransactionStatus = "financing"
	TransactionStatusClosingPreparation TransactionStatus = "closing_preparation"
	TransactionStatusCompleted          TransactionStatus = "completed"
	TransactionStatusCancelled          TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further mutation is accepted in this status.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusCancelled
}

// CriticalPathStatus is the derived health indicator comparing actual
// progress to elapsed time.
type CriticalPathStatus string

const (
	CriticalPathAhead   CriticalPathStatus = "ahead"
	CriticalPathOnTrack CriticalPathStatus = "on_track"
	CriticalPathAtRisk  CriticalPathStatus = "at_risk"
	CriticalPathDelayed CriticalPathStatus = "delayed"
)

// MilestoneStatus represents the state of a milestone instance.
type MilestoneStatus string

const (
	MilestoneStatusNotStarted MilestoneStatus = "not_started"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusCompleted  MilestoneStatus = "completed"
	MilestoneStatusCancelled  MilestoneStatus = "cancelled"
)

func (s MilestoneStatus) IsTerminal() bool {
	return s == MilestoneStatusCompleted || s == MilestoneStatusCancelled
}

// TaskStatus represents the state of a task instance. Overdue is not
// terminal; an overdue task can still be completed.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusOverdue    TaskStatus = "overdue"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// TransactionInstance is one live deal's progress through a workflow. It is
// created by the instantiator and mutated only by the state engine.
type TransactionInstance struct {
	ID                  string              `json:"id"`
	WorkflowID          string              `json:"workflow_id"`
	PropertyAddress     string              `json:"property_address"`
	TransactionType     TransactionType     `json:"transaction_type"`
	ContractDate        time.Time           `json:"contract_date"`
	ClosingDate         time.Time           `json:"closing_date"`
	Status              TransactionStatus   `json:"status"`
	OverallProgress     float64             `json:"overall_progress"`
	CriticalPathStatus  CriticalPathStatus  `json:"critical_path_status"`
	Milestones          []*MilestoneInstance `json:"milestones"`
	CompletedMilestones map[string]bool     `json:"completed_milestones"`
	ActiveTasks         map[string]bool     `json:"active_tasks"`
	OverdueTasks        map[string]bool     `json:"overdue_tasks"`
	Alerts              []*Alert            `json:"alerts,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// IsTerminal reports whether the transaction accepts further mutation.
func (t *TransactionInstance) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// MilestoneByID returns the milestone with the given id, or nil.
func (t *TransactionInstance) MilestoneByID(id string) *MilestoneInstance {
	for _, m := range t.Milestones {
		if m.ID == id {
			return m
		}
	}

	return nil
}

// MilestonesByOrder returns every milestone at the given order position.
func (t *TransactionInstance) MilestonesByOrder(order int) []*MilestoneInstance {
	var out []*MilestoneInstance

	for _, m := range t.Milestones {
		if m.Order == order {
			out = append(out, m)
		}
	}

	return out
}

// TaskByID returns the task with the given id together with its owning
// milestone, or nil, nil when not found.
func (t *TransactionInstance) TaskByID(id string) (*TaskInstance, *MilestoneInstance) {
	for _, m := range t.Milestones {
		if task := m.TaskByID(id); task != nil {
			return task, m
		}
	}

	return nil, nil
}

// MilestoneInstance is a milestone template cloned into a live transaction.
type MilestoneInstance struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Order              int             `json:"order"`
	EstimatedDays      int             `json:"estimated_days"`
	IsCritical         bool            `json:"is_critical"`
	CanRunParallel     bool            `json:"can_run_parallel"`
	AutoStart          bool            `json:"auto_start"`
	AutoComplete       bool            `json:"auto_complete"`
	DependsOnOrders    []int           `json:"depends_on_orders,omitempty"`
	Status             MilestoneStatus `json:"status"`
	TargetDate         time.Time       `json:"target_date"`
	ActualStart        *time.Time      `json:"actual_start,omitempty"`
	ActualCompletion   *time.Time      `json:"actual_completion,omitempty"`
	ProgressPercentage float64         `json:"progress_percentage"`
	Tasks              []*TaskInstance `json:"tasks"`
}

// TaskByID returns the task with the given id, or nil.
func (m *MilestoneInstance) TaskByID(id string) *TaskInstance {
	for _, task := range m.Tasks {
		if task.ID == id {
			return task
		}
	}

	return nil
}

// CompletedTaskCount returns how many of the milestone's tasks are completed.
func (m *MilestoneInstance) CompletedTaskCount() int {
	count := 0

	for _, task := range m.Tasks {
		if task.Status == TaskStatusCompleted {
			count++
		}
	}

	return count
}

// TaskNote is one entry in a task's append-only notes log.
type TaskNote struct {
	Text    string    `json:"text"`
	AddedAt time.Time `json:"added_at"`
}

// TaskInstance is a task template cloned into a live transaction. DependsOn
// and Blocks carry instance-scoped ids; template ids never survive
// instantiation.
type TaskInstance struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Priority           TaskPriority `json:"priority"`
	Kind               TaskKind     `json:"kind"`
	RequiredDocuments  []string     `json:"required_documents,omitempty"`
	CompletionCriteria []string     `json:"completion_criteria,omitempty"`
	DependsOn          []string     `json:"depends_on,omitempty"`
	Blocks             []string     `json:"blocks,omitempty"`
	Status             TaskStatus   `json:"status"`
	DueDate            time.Time    `json:"due_date"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
	ProgressPercentage float64      `json:"progress_percentage"`
	Notes              []TaskNote   `json:"notes,omitempty"`
}
