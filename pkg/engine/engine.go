// Package engine implements the transaction workflow state engine. It
// instantiates workflow templates into live transactions, applies every state
// mutation under a per-transaction lock, derives overall progress and
// critical-path health, and publishes lifecycle events and alerts.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/eventbus"
	"github.com/dealflow/dealflow/pkg/events"
	"github.com/dealflow/dealflow/pkg/models"
	"github.com/dealflow/dealflow/pkg/persistence"
)

// EventSink receives lifecycle events and alerts. Delivery is fire-and-forget;
// publish failures are logged, never propagated to callers.
type EventSink interface {
	Publish(ctx context.Context, key string, event eventbus.Event) error
	PublishAlert(ctx context.Context, alert *models.Alert) error
}

type Engine struct {
	catalog     *catalog.Catalog
	persistence persistence.Persistence
	sink        EventSink
	clock       clockwork.Clock
	builder     *Builder
	locks       *keyedMutex
	logger      *slog.Logger
}

// New creates a state engine. The clock is injectable so elapsed-time and
// overdue logic are deterministic under test.
func New(
	cat *catalog.Catalog,
	p persistence.Persistence,
	sink EventSink,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		catalog:     cat,
		persistence: p,
		sink:        sink,
		clock:       clock,
		builder:     NewBuilder(clock),
		locks:       newKeyedMutex(),
		logger:      logger.With("module", "engine"),
	}
}

// CreateTransaction instantiates the given workflow template into a live
// transaction. A zero contract date defaults to now; a zero closing date
// defaults to the contract date plus the template's timeline.
func (e *Engine) CreateTransaction(
	ctx context.Context,
	workflowID string,
	propertyAddress string,
	transactionType models.TransactionType,
	contractDate time.Time,
	closingDate time.Time,
) (*models.TransactionInstance, error) {
	template, err := e.catalog.Get(workflowID)
	if err != nil {
		return nil, err
	}

	if transactionType != "" && transactionType != template.TransactionType {
		return nil, fmt.Errorf("%w: template %s is for %s transactions",
			ErrTemplateMismatch, template.ID, template.TransactionType)
	}

	now := e.clock.Now().UTC()

	if contractDate.IsZero() {
		contractDate = now
	}

	if closingDate.IsZero() {
		closingDate = contractDate.AddDate(0, 0, template.TimelineDays)
	}

	transaction := e.builder.Build(template, propertyAddress, contractDate, closingDate)

	var evs []eventbus.Event

	if first := transaction.Milestones[0]; first.AutoStart {
		e.startMilestone(transaction, first, now, &evs)
	}

	alerts := e.updateProgress(transaction, now)

	if err := e.persistence.SaveTransaction(ctx, transaction); err != nil {
		return nil, err
	}

	e.logger.Info("Created transaction",
		"transaction_id", transaction.ID,
		"workflow_id", workflowID,
		"closing_date", closingDate)

	evs = append([]eventbus.Event{events.TransactionCreated{
		BaseEvent:       e.baseEvent(events.TransactionCreatedEvent, transaction.ID, now),
		WorkflowID:      workflowID,
		PropertyAddress: propertyAddress,
		TransactionType: transaction.TransactionType,
		ClosingDate:     closingDate,
	}}, evs...)

	e.publish(ctx, transaction.ID, evs, alerts)

	return transaction, nil
}

// Transaction returns a transaction by id.
func (e *Engine) Transaction(ctx context.Context, id string) (*models.TransactionInstance, error) {
	return e.persistence.TransactionByID(ctx, id)
}

// Transactions returns every known transaction.
func (e *Engine) Transactions(ctx context.Context) ([]*models.TransactionInstance, error) {
	return e.persistence.Transactions(ctx)
}

// HealthCheck reports whether the backing store is reachable.
func (e *Engine) HealthCheck(ctx context.Context) (string, bool) {
	if err := e.persistence.HealthCheck(ctx); err != nil {
		return err.Error(), false
	}

	return "persistence is healthy", true
}

// StartMilestone moves a milestone to IN_PROGRESS and starts every task of it
// that has no unmet dependency. Starting an already in-progress milestone is
// a no-op returning false.
func (e *Engine) StartMilestone(ctx context.Context, transactionID, milestoneID string) (bool, error) {
	const op = "StartMilestone"

	unlock := e.locks.Lock(transactionID)
	defer unlock()

	transaction, err := e.persistence.TransactionByID(ctx, transactionID)
	if err != nil {
		return false, err
	}

	if transaction.IsTerminal() {
		return false, NewTransitionError(op, transactionID, milestoneID, ErrInvalidTransition)
	}

	milestone := transaction.MilestoneByID(milestoneID)
	if milestone == nil {
		return false, NewTransitionError(op, transactionID, milestoneID, ErrMilestoneNotFound)
	}

	switch milestone.Status {
	case models.MilestoneStatusInProgress:
		return false, nil
	case models.MilestoneStatusCompleted, models.MilestoneStatusCancelled:
		return false, NewTransitionError(op, transactionID, milestoneID, ErrInvalidTransition)
	case models.MilestoneStatusNotStarted:
	}

	if err := e.checkMilestoneDependencies(op, transaction, milestone); err != nil {
		return false, err
	}

	now := e.clock.Now().UTC()

	var evs []eventbus.Event

	e.startMilestone(transaction, milestone, now, &evs)
	alerts := e.updateProgress(transaction, now)

	if err := e.persistence.SaveTransaction(ctx, transaction); err != nil {
		return false, err
	}

	e.publish(ctx, transactionID, evs, alerts)

	return true, nil
}

// CompleteTask marks a task COMPLETED, cascades PENDING→IN_PROGRESS to
// siblings whose dependencies are now satisfied, recomputes milestone
// progress, and auto-completes the milestone when flagged. Completing an
// already-completed task is a no-op returning false.
func (e *Engine) CompleteTask(ctx context.Context, transactionID, taskID, notes string) (bool, error) {
	const op = "CompleteTask"

	unlock := e.locks.Lock(transactionID)
	defer unlock()

	transaction, err := e.persistence.TransactionByID(ctx, transactionID)
	if err != nil {
		return false, err
	}

	if transaction.IsTerminal() {
		return false, NewTransitionError(op, transactionID, taskID, ErrInvalidTransition)
	}

	task, milestone := transaction.TaskByID(taskID)
	if task == nil {
		return false, NewTransitionError(op, transactionID, taskID, ErrTaskNotFound)
	}

	switch task.Status {
	case models.TaskStatusCompleted:
		return false, nil
	case models.TaskStatusCancelled:
		return false, NewTransitionError(op, transactionID, taskID, ErrInvalidTransition)
	case models.TaskStatusPending:
		if !e.taskDependenciesSatisfied(milestone, task) {
			return false, NewTransitionError(op, transactionID, taskID, ErrDependencyNotSatisfied)
		}
	case models.TaskStatusInProgress, models.TaskStatusOverdue:
	}

	now := e.clock.Now().UTC()

	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	task.ProgressPercentage = 100

	if notes != "" {
		task.Notes = append(task.Notes, models.TaskNote{Text: notes, AddedAt: now})
	}

	delete(transaction.ActiveTasks, task.ID)
	delete(transaction.OverdueTasks, task.ID)

	evs := []eventbus.Event{events.TaskCompleted{
		BaseEvent:   e.baseEvent(events.TaskCompletedEvent, transactionID, now),
		TaskID:      task.ID,
		TaskName:    task.Name,
		MilestoneID: milestone.ID,
		Notes:       notes,
	}}

	e.startEligibleTasks(transaction, milestone, now)

	milestone.ProgressPercentage = float64(milestone.CompletedTaskCount()) / float64(len(milestone.Tasks)) * 100

	if milestone.ProgressPercentage >= 100 && milestone.AutoComplete && milestone.Status != models.MilestoneStatusCompleted {
		e.completeMilestone(transaction, milestone, now, &evs)
	}

	alerts := e.updateProgress(transaction, now)

	if err := e.persistence.SaveTransaction(ctx, transaction); err != nil {
		return false, err
	}

	e.publish(ctx, transactionID, evs, alerts)

	return true, nil
}

// CompleteMilestone marks a milestone COMPLETED, fails when any of its tasks
// is still open, and auto-starts the next-order milestones flagged for it.
// Completing an already-completed milestone is a no-op returning false.
func (e *Engine) CompleteMilestone(ctx context.Context, transactionID, milestoneID string) (bool, error) {
	const op = "CompleteMilestone"

	unlock := e.locks.Lock(transactionID)
	defer unlock()

	transaction, err := e.persistence.TransactionByID(ctx, transactionID)
	if err != nil {
		return false, err
	}

	if transaction.IsTerminal() {
		return false, NewTransitionError(op, transactionID, milestoneID, ErrInvalidTransition)
	}

	milestone := transaction.MilestoneByID(milestoneID)
	if milestone == nil {
		return false, NewTransitionError(op, transactionID, milestoneID, ErrMilestoneNotFound)
	}

	if milestone.Status == models.MilestoneStatusCompleted {
		return false, nil
	}

	if milestone.Status == models.MilestoneStatusCancelled {
		return false, NewTransitionError(op, transactionID, milestoneID, ErrInvalidTransition)
	}

	for _, task := range milestone.Tasks {
		if task.Status != models.TaskStatusCompleted {
			return false, NewTransitionError(op, transactionID, milestoneID,
				fmt.Errorf("%w: task %s is %s", ErrIncompleteTasks, task.ID, task.Status))
		}
	}

	now := e.clock.Now().UTC()

	var evs []eventbus.Event

	e.completeMilestone(transaction, milestone, now, &evs)
	alerts := e.updateProgress(transaction, now)

	if err := e.persistence.SaveTransaction(ctx, transaction); err != nil {
		return false, err
	}

	e.publish(ctx, transactionID, evs, alerts)

	return true, nil
}

// CancelTransaction marks the transaction and every non-terminal milestone
// and task CANCELLED. The transaction is terminal afterwards; all subsequent
// mutations fail with an invalid-transition error.
func (e *Engine) CancelTransaction(ctx context.Context, transactionID string) (bool, error) {
	const op = "CancelTransaction"

	unlock := e.locks.Lock(transactionID)
	defer unlock()

	transaction, err := e.persistence.TransactionByID(ctx, transactionID)
	if err != nil {
		return false, err
	}

	if transaction.IsTerminal() {
		return false, NewTransitionError(op, transactionID, "", ErrInvalidTransition)
	}

	now := e.clock.Now().UTC()

	cancelledMilestones := 0
	cancelledTasks := 0

	for _, milestone := range transaction.Milestones {
		if !milestone.Status.IsTerminal() {
			milestone.Status = models.MilestoneStatusCancelled
			cancelledMilestones++
		}

		for _, task := range milestone.Tasks {
			if !task.Status.IsTerminal() {
				task.Status = models.TaskStatusCancelled
				cancelledTasks++
			}
		}
	}

	transaction.ActiveTasks = make(map[string]bool)
	transaction.OverdueTasks = make(map[string]bool)
	transaction.Status = models.TransactionStatusCancelled
	transaction.UpdatedAt = now

	if err := e.persistence.SaveTransaction(ctx, transaction); err != nil {
		return false, err
	}

	e.logger.Info("Cancelled transaction",
		"transaction_id", transactionID,
		"cancelled_milestones", cancelledMilestones,
		"cancelled_tasks", cancelledTasks)

	e.publish(ctx, transactionID, []eventbus.Event{events.TransactionCancelled{
		BaseEvent:           e.baseEvent(events.TransactionCancelledEvent, transactionID, now),
		CancelledMilestones: cancelledMilestones,
		CancelledTasks:      cancelledTasks,
	}}, nil)

	return true, nil
}

// RefreshProgress recomputes overall progress and critical-path status from
// the current milestone and task state, emitting a timeline alert when the
// transaction transitions into at_risk or delayed.
func (e *Engine) RefreshProgress(ctx context.Context, transactionID string) (*models.TransactionInstance, error) {
	const op = "RefreshProgress"

	unlock := e.locks.Lock(transactionID)
	defer unlock()

	transaction, err := e.persistence.TransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if transaction.IsTerminal() {
		return nil, NewTransitionError(op, transactionID, "", ErrInvalidTransition)
	}

	alerts := e.updateProgress(transaction, e.clock.Now().UTC())

	if err := e.persistence.SaveTransaction(ctx, transaction); err != nil {
		return nil, err
	}

	e.publish(ctx, transactionID, nil, alerts)

	return transaction, nil
}

func (e *Engine) checkMilestoneDependencies(op string, transaction *models.TransactionInstance, milestone *models.MilestoneInstance) error {
	if milestone.CanRunParallel {
		return nil
	}

	required := milestone.DependsOnOrders
	if len(required) == 0 && milestone.Order > 1 {
		required = []int{milestone.Order - 1}
	}

	for _, order := range required {
		for _, dep := range transaction.MilestonesByOrder(order) {
			if !transaction.CompletedMilestones[dep.ID] {
				return NewTransitionError(op, transaction.ID, milestone.ID,
					fmt.Errorf("%w: milestone %q at order %d is not completed", ErrDependencyNotSatisfied, dep.Name, order))
			}
		}
	}

	return nil
}

func (e *Engine) startMilestone(transaction *models.TransactionInstance, milestone *models.MilestoneInstance, now time.Time, evs *[]eventbus.Event) {
	milestone.Status = models.MilestoneStatusInProgress
	milestone.ActualStart = &now

	e.startEligibleTasks(transaction, milestone, now)

	*evs = append(*evs, events.MilestoneStarted{
		BaseEvent:     e.baseEvent(events.MilestoneStartedEvent, transaction.ID, now),
		MilestoneID:   milestone.ID,
		MilestoneName: milestone.Name,
		TargetDate:    milestone.TargetDate,
	})
}

// startEligibleTasks moves every pending task whose dependencies are all
// completed to IN_PROGRESS.
func (e *Engine) startEligibleTasks(transaction *models.TransactionInstance, milestone *models.MilestoneInstance, now time.Time) {
	if milestone.Status != models.MilestoneStatusInProgress {
		return
	}

	for _, task := range milestone.Tasks {
		if task.Status != models.TaskStatusPending {
			continue
		}

		if !e.taskDependenciesSatisfied(milestone, task) {
			continue
		}

		started := now
		task.Status = models.TaskStatusInProgress
		task.StartedAt = &started
		transaction.ActiveTasks[task.ID] = true
	}
}

func (e *Engine) taskDependenciesSatisfied(milestone *models.MilestoneInstance, task *models.TaskInstance) bool {
	for _, dep := range task.DependsOn {
		sibling := milestone.TaskByID(dep)
		if sibling != nil && sibling.Status != models.TaskStatusCompleted {
			return false
		}
	}

	return true
}

// completeMilestone assumes every task of the milestone is completed. It adds
// the milestone to the completed set and auto-starts next-order milestones
// flagged auto_start whose dependencies are satisfied.
func (e *Engine) completeMilestone(transaction *models.TransactionInstance, milestone *models.MilestoneInstance, now time.Time, evs *[]eventbus.Event) {
	milestone.Status = models.MilestoneStatusCompleted
	milestone.ActualCompletion = &now
	milestone.ProgressPercentage = 100
	transaction.CompletedMilestones[milestone.ID] = true

	*evs = append(*evs, events.MilestoneCompleted{
		BaseEvent:       e.baseEvent(events.MilestoneCompletedEvent, transaction.ID, now),
		MilestoneID:     milestone.ID,
		MilestoneName:   milestone.Name,
		OverallProgress: transaction.OverallProgress,
	})

	for _, next := range transaction.MilestonesByOrder(milestone.Order + 1) {
		if !next.AutoStart || next.Status != models.MilestoneStatusNotStarted {
			continue
		}

		if err := e.checkMilestoneDependencies("AutoStartMilestone", transaction, next); err != nil {
			e.logger.Debug("Skipping auto-start, dependencies unmet",
				"transaction_id", transaction.ID,
				"milestone_id", next.ID)

			continue
		}

		e.startMilestone(transaction, next, now, evs)
	}
}

// updateProgress recomputes overall progress, derives the transaction status
// from progress thresholds, and re-evaluates the critical path. It returns
// the timeline alerts raised by a transition into at_risk or delayed;
// unchanged health never re-emits an alert.
func (e *Engine) updateProgress(transaction *models.TransactionInstance, now time.Time) []*models.Alert {
	total := len(transaction.Milestones)
	if total == 0 {
		return nil
	}

	completed := 0
	partial := 0.0

	for _, milestone := range transaction.Milestones {
		switch milestone.Status {
		case models.MilestoneStatusCompleted:
			completed++
		case models.MilestoneStatusInProgress:
			partial += milestone.ProgressPercentage
		case models.MilestoneStatusNotStarted, models.MilestoneStatusCancelled:
		}
	}

	progress := float64(completed)/float64(total)*100 + partial/float64(total)
	if progress > 100 {
		progress = 100
	}

	transaction.OverallProgress = progress

	if !transaction.Status.IsTerminal() {
		transaction.Status = statusForProgress(progress)
	}

	alerts := e.updateCriticalPath(transaction, now)
	transaction.UpdatedAt = now

	return alerts
}

func statusForProgress(progress float64) models.TransactionStatus {
	switch {
	case progress >= 100:
		return models.TransactionStatusCompleted
	case progress > 80:
		return models.TransactionStatusClosingPreparation
	case progress > 60:
		return models.TransactionStatusFinancing
	case progress > 40:
		return models.TransactionStatusDueDiligence
	case progress > 0:
		return models.TransactionStatusUnderContract
	default:
		return models.TransactionStatusNew
	}
}

func (e *Engine) updateCriticalPath(transaction *models.TransactionInstance, now time.Time) []*models.Alert {
	plannedDays := transaction.ClosingDate.Sub(transaction.ContractDate).Hours() / 24
	if plannedDays <= 0 {
		return nil
	}

	elapsedDays := now.Sub(transaction.ContractDate).Hours() / 24
	if elapsedDays < 0 {
		elapsedDays = 0
	}

	expected := elapsedDays / plannedDays * 100
	if expected > 100 {
		expected = 100
	}

	diff := transaction.OverallProgress - expected

	var status models.CriticalPathStatus

	switch {
	case diff >= 10:
		status = models.CriticalPathAhead
	case diff >= -5:
		status = models.CriticalPathOnTrack
	case diff >= -15:
		status = models.CriticalPathAtRisk
	default:
		status = models.CriticalPathDelayed
	}

	previous := transaction.CriticalPathStatus
	transaction.CriticalPathStatus = status

	if status == previous {
		return nil
	}

	if status != models.CriticalPathAtRisk && status != models.CriticalPathDelayed {
		return nil
	}

	alert := e.timelineAlert(transaction, status, diff, now)
	transaction.Alerts = append(transaction.Alerts, alert)

	return []*models.Alert{alert}
}

func (e *Engine) timelineAlert(transaction *models.TransactionInstance, status models.CriticalPathStatus, diff float64, now time.Time) *models.Alert {
	severity := models.AlertSeverityMedium
	title := "Transaction at risk of missing closing date"

	if status == models.CriticalPathDelayed {
		severity = models.AlertSeverityHigh
		title = "Transaction behind schedule"

		if diff <= -30 {
			severity = models.AlertSeverityCritical
		}
	}

	return &models.Alert{
		ID:            uuid.New().String(),
		TransactionID: transaction.ID,
		Kind:          models.AlertKindTimeline,
		Severity:      severity,
		Title:         title,
		Message: fmt.Sprintf("Progress is %.1f%% while %.1f%% was expected by now for %s",
			transaction.OverallProgress, transaction.OverallProgress-diff, transaction.PropertyAddress),
		SuggestedActions: []string{
			"Review overdue and blocked tasks",
			"Escalate to the transaction coordinator",
			"Consider renegotiating the closing date",
		},
		CreatedAt: now,
	}
}

func (e *Engine) baseEvent(eventType events.EventType, transactionID string, now time.Time) events.BaseEvent {
	return events.BaseEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		Timestamp:     now,
		TransactionID: transactionID,
	}
}

func (e *Engine) publish(ctx context.Context, transactionID string, evs []eventbus.Event, alerts []*models.Alert) {
	if e.sink == nil {
		return
	}

	for _, event := range evs {
		if err := e.sink.Publish(ctx, transactionID, event); err != nil {
			e.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
		}
	}

	for _, alert := range alerts {
		if err := e.sink.PublishAlert(ctx, alert); err != nil {
			e.logger.Error("Failed to publish alert", "alert_id", alert.ID, "error", err)
		}
	}
}
