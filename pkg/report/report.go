// Package report builds read-only status summaries over stored transactions.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dealflow/dealflow/pkg/models"
	"github.com/dealflow/dealflow/pkg/persistence"
)

// RiskLevel grades how likely a transaction is to miss its closing date.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// MilestoneSummary is one milestone's condensed state inside a report.
type MilestoneSummary struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Order              int                    `json:"order"`
	Status             models.MilestoneStatus `json:"status"`
	ProgressPercentage float64                `json:"progress_percentage"`
	TargetDate         time.Time              `json:"target_date"`
	ActualCompletion   *time.Time             `json:"actual_completion,omitempty"`
	TotalTasks         int                    `json:"total_tasks"`
	CompletedTasks     int                    `json:"completed_tasks"`
}

// OverdueTaskSummary is one overdue task inside a report.
type OverdueTaskSummary struct {
	TaskID        string              `json:"task_id"`
	TaskName      string              `json:"task_name"`
	MilestoneName string              `json:"milestone_name"`
	Priority      models.TaskPriority `json:"priority"`
	DueDate       time.Time           `json:"due_date"`
	DaysOverdue   int                 `json:"days_overdue"`
}

// TransactionReport is a point-in-time snapshot of one transaction: lifecycle
// position, schedule health, overdue work, and a completion projection.
type TransactionReport struct {
	TransactionID       string                    `json:"transaction_id"`
	PropertyAddress     string                    `json:"property_address"`
	TransactionType     models.TransactionType    `json:"transaction_type"`
	Status              models.TransactionStatus  `json:"status"`
	CriticalPathStatus  models.CriticalPathStatus `json:"critical_path_status"`
	OverallProgress     float64                   `json:"overall_progress"`
	ContractDate        time.Time                 `json:"contract_date"`
	ClosingDate         time.Time                 `json:"closing_date"`
	Milestones          []MilestoneSummary        `json:"milestones"`
	OverdueTasks        []OverdueTaskSummary      `json:"overdue_tasks"`
	ProjectedCompletion *time.Time                `json:"projected_completion,omitempty"`
	RiskLevel           RiskLevel                 `json:"risk_level"`
	GeneratedAt         time.Time                 `json:"generated_at"`
}

// Generator assembles transaction reports from persisted state. It never
// mutates transactions and needs no locks.
type Generator struct {
	persistence persistence.Persistence
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewGenerator creates a report generator.
func NewGenerator(p persistence.Persistence, clock clockwork.Clock, logger *slog.Logger) *Generator {
	return &Generator{
		persistence: p,
		clock:       clock,
		logger:      logger.With("module", "report"),
	}
}

// TransactionReport builds the full status report for one transaction.
func (g *Generator) TransactionReport(ctx context.Context, transactionID string) (*TransactionReport, error) {
	transaction, err := g.persistence.TransactionByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}

	now := g.clock.Now().UTC()

	report := &TransactionReport{
		TransactionID:      transaction.ID,
		PropertyAddress:    transaction.PropertyAddress,
		TransactionType:    transaction.TransactionType,
		Status:             transaction.Status,
		CriticalPathStatus: transaction.CriticalPathStatus,
		OverallProgress:    transaction.OverallProgress,
		ContractDate:       transaction.ContractDate,
		ClosingDate:        transaction.ClosingDate,
		Milestones:         make([]MilestoneSummary, 0, len(transaction.Milestones)),
		OverdueTasks:       make([]OverdueTaskSummary, 0),
		GeneratedAt:        now,
	}

	for _, milestone := range transaction.Milestones {
		report.Milestones = append(report.Milestones, MilestoneSummary{
			ID:                 milestone.ID,
			Name:               milestone.Name,
			Order:              milestone.Order,
			Status:             milestone.Status,
			ProgressPercentage: milestone.ProgressPercentage,
			TargetDate:         milestone.TargetDate,
			ActualCompletion:   milestone.ActualCompletion,
			TotalTasks:         len(milestone.Tasks),
			CompletedTasks:     milestone.CompletedTaskCount(),
		})

		for _, task := range milestone.Tasks {
			if task.Status != models.TaskStatusOverdue {
				continue
			}

			report.OverdueTasks = append(report.OverdueTasks, OverdueTaskSummary{
				TaskID:        task.ID,
				TaskName:      task.Name,
				MilestoneName: milestone.Name,
				Priority:      task.Priority,
				DueDate:       task.DueDate,
				DaysOverdue:   int(now.Sub(task.DueDate).Hours() / 24),
			})
		}
	}

	report.ProjectedCompletion = g.projectCompletion(transaction, now)
	report.RiskLevel = g.riskLevel(transaction, report, now)

	g.logger.Debug("Generated transaction report",
		"transaction_id", transaction.ID,
		"risk_level", report.RiskLevel,
		"overdue_tasks", len(report.OverdueTasks))

	return report, nil
}

// projectCompletion extrapolates from the progress rate observed so far.
// Nothing can be projected before any progress exists.
func (g *Generator) projectCompletion(transaction *models.TransactionInstance, now time.Time) *time.Time {
	if transaction.Status == models.TransactionStatusCompleted {
		completed := transaction.UpdatedAt

		return &completed
	}

	if transaction.IsTerminal() || transaction.OverallProgress <= 0 {
		return nil
	}

	elapsedDays := now.Sub(transaction.ContractDate).Hours() / 24
	if elapsedDays <= 0 {
		return nil
	}

	rate := transaction.OverallProgress / elapsedDays
	remainingDays := (100 - transaction.OverallProgress) / rate

	projected := now.Add(time.Duration(remainingDays * 24 * float64(time.Hour)))

	return &projected
}

// riskLevel scores schedule pressure: critical-path slippage, overdue work,
// and a projection landing past the closing date each add weight.
func (g *Generator) riskLevel(transaction *models.TransactionInstance, report *TransactionReport, now time.Time) RiskLevel {
	if transaction.IsTerminal() {
		return RiskLevelLow
	}

	score := 0

	switch transaction.CriticalPathStatus {
	case models.CriticalPathDelayed:
		score += 2
	case models.CriticalPathAtRisk:
		score++
	}

	if len(report.OverdueTasks) >= 1 {
		score++
	}

	if len(report.OverdueTasks) > 3 {
		score++
	}

	if report.ProjectedCompletion != nil && !transaction.ClosingDate.IsZero() &&
		report.ProjectedCompletion.After(transaction.ClosingDate) {
		score++
	}

	switch {
	case score >= 4:
		return RiskLevelCritical
	case score >= 2:
		return RiskLevelHigh
	case score == 1:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}
