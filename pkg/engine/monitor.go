package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dealflow/dealflow/pkg/models"
)

// ErrCorruptDueDate indicates a stored task has no usable due date. The scan
// reports it and moves on to the next transaction.
var ErrCorruptDueDate = errors.New("task has corrupt due date")

// Monitor periodically scans active transactions for missed and imminent
// task deadlines. It shares the engine's per-transaction locks so a scan
// never races a concurrently-completing task.
type Monitor struct {
	engine *Engine
}

// NewMonitor creates a deadline monitor bound to the engine's state.
func NewMonitor(e *Engine) *Monitor {
	return &Monitor{engine: e}
}

// ScanFailure records a transaction the scan could not process.
type ScanFailure struct {
	TransactionID string `json:"transaction_id"`
	Err           error  `json:"-"`
	Message       string `json:"message"`
}

// ScanResult carries the alerts of one deadline scan together with the
// per-transaction failures, so one bad record never blocks the batch.
type ScanResult struct {
	Alerts   []*models.Alert `json:"alerts"`
	Failures []ScanFailure   `json:"failures,omitempty"`
}

// OverdueItem is one overdue task with its surrounding context.
type OverdueItem struct {
	TransactionID   string              `json:"transaction_id"`
	PropertyAddress string              `json:"property_address"`
	MilestoneID     string              `json:"milestone_id"`
	MilestoneName   string              `json:"milestone_name"`
	TaskID          string              `json:"task_id"`
	TaskName        string              `json:"task_name"`
	Priority        models.TaskPriority `json:"priority"`
	DueDate         time.Time           `json:"due_date"`
	DaysOverdue     int                 `json:"days_overdue"`
}

// MonitorDeadlines scans every non-terminal transaction. Tasks past their due
// date flip to OVERDUE; tasks due within lookaheadDays produce a deadline
// alert whose severity rises as the remaining time shrinks.
func (m *Monitor) MonitorDeadlines(ctx context.Context, lookaheadDays int) (*ScanResult, error) {
	transactions, err := m.engine.persistence.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	result := &ScanResult{}

	for _, transaction := range transactions {
		if transaction.IsTerminal() {
			continue
		}

		alerts, err := m.scanTransaction(ctx, transaction.ID, lookaheadDays)
		if err != nil {
			m.engine.logger.Warn("Deadline scan failed for transaction",
				"transaction_id", transaction.ID,
				"error", err)

			result.Failures = append(result.Failures, ScanFailure{
				TransactionID: transaction.ID,
				Err:           err,
				Message:       err.Error(),
			})

			continue
		}

		result.Alerts = append(result.Alerts, alerts...)
	}

	return result, nil
}

// scanTransaction takes the transaction's lock, reloads it, and applies
// overdue transitions and deadline alerts in one save.
func (m *Monitor) scanTransaction(ctx context.Context, transactionID string, lookaheadDays int) ([]*models.Alert, error) {
	unlock := m.engine.locks.Lock(transactionID)
	defer unlock()

	transaction, err := m.engine.persistence.TransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if transaction.IsTerminal() {
		return nil, nil
	}

	now := m.engine.clock.Now().UTC()
	lookahead := time.Duration(lookaheadDays) * 24 * time.Hour

	var alerts []*models.Alert

	changed := false

	for _, milestone := range transaction.Milestones {
		for _, task := range milestone.Tasks {
			if task.Status.IsTerminal() {
				continue
			}

			if task.DueDate.IsZero() {
				return nil, fmt.Errorf("%w: task %s", ErrCorruptDueDate, task.ID)
			}

			remaining := task.DueDate.Sub(now)

			switch {
			case remaining < 0:
				if task.Status == models.TaskStatusOverdue {
					continue
				}

				task.Status = models.TaskStatusOverdue
				transaction.OverdueTasks[task.ID] = true
				changed = true

				alerts = append(alerts, m.overdueAlert(transaction, milestone, task, now))
			case lookahead > 0 && remaining <= lookahead:
				alerts = append(alerts, m.upcomingAlert(transaction, milestone, task, remaining, now))
			}
		}
	}

	if len(alerts) > 0 {
		transaction.Alerts = append(transaction.Alerts, alerts...)
		changed = true
	}

	if changed {
		transaction.UpdatedAt = now

		if err := m.engine.persistence.SaveTransaction(ctx, transaction); err != nil {
			return nil, err
		}
	}

	m.engine.publish(ctx, transactionID, nil, alerts)

	return alerts, nil
}

func (m *Monitor) overdueAlert(transaction *models.TransactionInstance, milestone *models.MilestoneInstance, task *models.TaskInstance, now time.Time) *models.Alert {
	daysOverdue := int(now.Sub(task.DueDate).Hours() / 24)

	severity := models.AlertSeverityHigh
	if task.Priority == models.TaskPriorityCritical || daysOverdue > 7 {
		severity = models.AlertSeverityCritical
	}

	return &models.Alert{
		ID:            uuid.New().String(),
		TransactionID: transaction.ID,
		Kind:          models.AlertKindDeadline,
		Severity:      severity,
		Title:         fmt.Sprintf("Task overdue: %s", task.Name),
		Message: fmt.Sprintf("Task %q in milestone %q for %s is %d day(s) overdue",
			task.Name, milestone.Name, transaction.PropertyAddress, daysOverdue),
		SuggestedActions: []string{
			"Complete or reassign the task",
			"Review the milestone timeline",
		},
		CreatedAt: now,
	}
}

func (m *Monitor) upcomingAlert(transaction *models.TransactionInstance, milestone *models.MilestoneInstance, task *models.TaskInstance, remaining time.Duration, now time.Time) *models.Alert {
	severity := models.AlertSeverityLow

	switch {
	case remaining <= 24*time.Hour:
		severity = models.AlertSeverityHigh
	case remaining <= 72*time.Hour:
		severity = models.AlertSeverityMedium
	}

	expires := task.DueDate

	return &models.Alert{
		ID:            uuid.New().String(),
		TransactionID: transaction.ID,
		Kind:          models.AlertKindDeadline,
		Severity:      severity,
		Title:         fmt.Sprintf("Task due soon: %s", task.Name),
		Message: fmt.Sprintf("Task %q in milestone %q for %s is due in %d day(s)",
			task.Name, milestone.Name, transaction.PropertyAddress, int(remaining.Hours()/24)+1),
		SuggestedActions: []string{
			"Prioritize the task before its due date",
		},
		CreatedAt: now,
		ExpiresAt: &expires,
	}
}

// GetOverdueTasks returns every overdue task, optionally scoped to one
// transaction, sorted by days overdue descending.
func (m *Monitor) GetOverdueTasks(ctx context.Context, transactionID string) ([]OverdueItem, error) {
	var transactions []*models.TransactionInstance

	if transactionID != "" {
		transaction, err := m.engine.persistence.TransactionByID(ctx, transactionID)
		if err != nil {
			return nil, err
		}

		transactions = []*models.TransactionInstance{transaction}
	} else {
		all, err := m.engine.persistence.Transactions(ctx)
		if err != nil {
			return nil, err
		}

		transactions = all
	}

	now := m.engine.clock.Now().UTC()

	items := make([]OverdueItem, 0)

	for _, transaction := range transactions {
		for _, milestone := range transaction.Milestones {
			for _, task := range milestone.Tasks {
				if task.Status != models.TaskStatusOverdue {
					continue
				}

				items = append(items, OverdueItem{
					TransactionID:   transaction.ID,
					PropertyAddress: transaction.PropertyAddress,
					MilestoneID:     milestone.ID,
					MilestoneName:   milestone.Name,
					TaskID:          task.ID,
					TaskName:        task.Name,
					Priority:        task.Priority,
					DueDate:         task.DueDate,
					DaysOverdue:     int(now.Sub(task.DueDate).Hours() / 24),
				})
			}
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].DaysOverdue > items[j].DaysOverdue
	})

	return items, nil
}
