package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/eventbus"
	"github.com/dealflow/dealflow/pkg/events"
	"github.com/dealflow/dealflow/pkg/models"
	"github.com/dealflow/dealflow/pkg/persistence/file"
)

// captureSink records published events and alerts for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []eventbus.Event
	alerts []*models.Alert
}

func (s *captureSink) Publish(_ context.Context, _ string, event eventbus.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)

	return nil
}

func (s *captureSink) PublishAlert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alert)

	return nil
}

func (s *captureSink) eventTypes() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]events.EventType, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.GetType())
	}

	return types
}

func (s *captureSink) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.alerts)
}

func purchaseTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:              "purchase-standard",
		Name:            "Standard Purchase",
		TransactionType: models.TransactionTypePurchase,
		TimelineDays:    30,
		Milestones: []*models.MilestoneTemplate{
			{
				Name:          "Contract Execution",
				Order:         1,
				EstimatedDays: 10,
				IsCritical:    true,
				AutoStart:     true,
				AutoComplete:  true,
				Tasks: []*models.TaskTemplate{
					{
						ID:       "sign-contract",
						Name:     "Sign purchase contract",
						Priority: models.TaskPriorityCritical,
						Kind:     models.TaskKindDocument,
					},
					{
						ID:        "deposit-earnest",
						Name:      "Deposit earnest money",
						Priority:  models.TaskPriorityHigh,
						Kind:      models.TaskKindManual,
						DependsOn: []string{"sign-contract"},
					},
				},
			},
			{
				Name:          "Due Diligence",
				Order:         2,
				EstimatedDays: 20,
				AutoStart:     true,
				Tasks: []*models.TaskTemplate{
					{
						ID:       "inspection",
						Name:     "Schedule inspection",
						Priority: models.TaskPriorityHigh,
						Kind:     models.TaskKindManual,
					},
					{
						ID:       "review-title",
						Name:     "Review title report",
						Priority: models.TaskPriorityMedium,
						Kind:     models.TaskKindDocument,
					},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, template *models.WorkflowTemplate) (*Engine, *captureSink, *clockwork.FakeClock) {
	t.Helper()

	logger := slog.Default()

	cat := catalog.New(logger)
	if template != nil {
		require.NoError(t, cat.Register(template))
	}

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	sink := &captureSink{}

	eng := New(cat, file.NewPersistence(t.TempDir()), sink, clock, logger)

	return eng, sink, clock
}

func TestEngine_CreateTransaction_AutoStartsFirstMilestone(t *testing.T) {
	eng, sink, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", models.TransactionTypePurchase, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.NotEmpty(t, transaction.ID)
	assert.Equal(t, models.TransactionStatusNew, transaction.Status)
	assert.Equal(t, models.CriticalPathOnTrack, transaction.CriticalPathStatus)
	require.Len(t, transaction.Milestones, 2)

	first := transaction.Milestones[0]
	assert.Equal(t, models.MilestoneStatusInProgress, first.Status)

	// Only the dependency-free task starts; the dependent one stays pending.
	assert.Equal(t, models.TaskStatusInProgress, first.Tasks[0].Status)
	assert.Equal(t, models.TaskStatusPending, first.Tasks[1].Status)
	assert.True(t, transaction.ActiveTasks[first.Tasks[0].ID])

	second := transaction.Milestones[1]
	assert.Equal(t, models.MilestoneStatusNotStarted, second.Status)

	assert.Contains(t, sink.eventTypes(), events.TransactionCreatedEvent)
	assert.Contains(t, sink.eventTypes(), events.MilestoneStartedEvent)
}

func TestEngine_CreateTransaction_DefaultsDates(t *testing.T) {
	eng, _, clock := newTestEngine(t, purchaseTemplate())

	transaction, err := eng.CreateTransaction(context.Background(), "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	now := clock.Now().UTC()
	assert.Equal(t, now, transaction.ContractDate)
	assert.Equal(t, now.AddDate(0, 0, 30), transaction.ClosingDate)
}

func TestEngine_CreateTransaction_TypeMismatch(t *testing.T) {
	eng, _, _ := newTestEngine(t, purchaseTemplate())

	_, err := eng.CreateTransaction(context.Background(), "purchase-standard", "123 Main St", models.TransactionTypeSale, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrTemplateMismatch)
}

func TestEngine_CreateTransaction_UnknownTemplate(t *testing.T) {
	eng, _, _ := newTestEngine(t, purchaseTemplate())

	_, err := eng.CreateTransaction(context.Background(), "missing", "123 Main St", "", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, catalog.IsTemplateNotFound(err))
}

func TestEngine_CreateTransaction_RoundTripsThroughStore(t *testing.T) {
	eng, _, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	created, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	loaded, err := eng.Transaction(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, created.Milestones[0].Tasks[0].ID, loaded.Milestones[0].Tasks[0].ID)
	assert.Equal(t, created.Status, loaded.Status)
}

func TestEngine_CompleteTask_DependencyGating(t *testing.T) {
	eng, _, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	first := transaction.Milestones[0]
	dependent := first.Tasks[1]

	_, err = eng.CompleteTask(ctx, transaction.ID, dependent.ID, "")
	require.Error(t, err)
	assert.True(t, IsDependencyNotSatisfied(err))
}

func TestEngine_CompleteTask_CascadesAndAutoCompletes(t *testing.T) {
	eng, sink, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	first := transaction.Milestones[0]

	changed, err := eng.CompleteTask(ctx, transaction.ID, first.Tasks[0].ID, "signed by both parties")
	require.NoError(t, err)
	assert.True(t, changed)

	loaded, err := eng.Transaction(ctx, transaction.ID)
	require.NoError(t, err)

	milestone := loaded.Milestones[0]
	assert.Equal(t, models.TaskStatusCompleted, milestone.Tasks[0].Status)
	require.Len(t, milestone.Tasks[0].Notes, 1)
	assert.Equal(t, "signed by both parties", milestone.Tasks[0].Notes[0].Text)

	// Completing the dependency starts the dependent task.
	assert.Equal(t, models.TaskStatusInProgress, milestone.Tasks[1].Status)
	assert.InDelta(t, 50, milestone.ProgressPercentage, 0.01)

	changed, err = eng.CompleteTask(ctx, transaction.ID, milestone.Tasks[1].ID, "")
	require.NoError(t, err)
	assert.True(t, changed)

	loaded, err = eng.Transaction(ctx, transaction.ID)
	require.NoError(t, err)

	// The milestone auto-completes and the next one auto-starts.
	assert.Equal(t, models.MilestoneStatusCompleted, loaded.Milestones[0].Status)
	assert.True(t, loaded.CompletedMilestones[loaded.Milestones[0].ID])
	assert.Equal(t, models.MilestoneStatusInProgress, loaded.Milestones[1].Status)
	assert.InDelta(t, 50, loaded.OverallProgress, 0.01)
	assert.Equal(t, models.TransactionStatusDueDiligence, loaded.Status)

	assert.Contains(t, sink.eventTypes(), events.TaskCompletedEvent)
	assert.Contains(t, sink.eventTypes(), events.MilestoneCompletedEvent)
}

func TestEngine_CompleteTask_Idempotent(t *testing.T) {
	eng, _, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	taskID := transaction.Milestones[0].Tasks[0].ID

	changed, err := eng.CompleteTask(ctx, transaction.ID, taskID, "")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = eng.CompleteTask(ctx, transaction.ID, taskID, "")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEngine_CompleteTask_UnknownTask(t *testing.T) {
	eng, _, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	_, err = eng.CompleteTask(ctx, transaction.ID, "no-such-task", "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestEngine_StartMilestone_GatedOnPreviousOrder(t *testing.T) {
	template := purchaseTemplate()
	template.Milestones[0].AutoComplete = false
	template.Milestones[1].AutoStart = false

	eng, _, _ := newTestEngine(t, template)
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	second := transaction.Milestones[1]

	_, err = eng.StartMilestone(ctx, transaction.ID, second.ID)
	require.Error(t, err)
	assert.True(t, IsDependencyNotSatisfied(err))

	// Complete every first-milestone task, then the milestone itself.
	for _, task := range transaction.Milestones[0].Tasks {
		_, err = eng.CompleteTask(ctx, transaction.ID, task.ID, "")
		require.NoError(t, err)
	}

	changed, err := eng.CompleteMilestone(ctx, transaction.ID, transaction.Milestones[0].ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = eng.StartMilestone(ctx, transaction.ID, second.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	// Starting again is a no-op.
	changed, err = eng.StartMilestone(ctx, transaction.ID, second.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEngine_StartMilestone_ParallelBypassesGating(t *testing.T) {
	template := purchaseTemplate()
	template.Milestones[1].AutoStart = false
	template.Milestones[1].CanRunParallel = true

	eng, _, _ := newTestEngine(t, template)
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	changed, err := eng.StartMilestone(ctx, transaction.ID, transaction.Milestones[1].ID)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestEngine_CompleteMilestone_RejectsOpenTasks(t *testing.T) {
	eng, _, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	_, err = eng.CompleteMilestone(ctx, transaction.ID, transaction.Milestones[0].ID)
	require.Error(t, err)
	assert.True(t, IsIncompleteTasks(err))
}

func TestEngine_CompletingEverything_FinishesTransaction(t *testing.T) {
	eng, _, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	for _, milestone := range transaction.Milestones {
		for _, task := range milestone.Tasks {
			_, err = eng.CompleteTask(ctx, transaction.ID, task.ID, "")
			require.NoError(t, err)
		}

		if _, err := eng.CompleteMilestone(ctx, transaction.ID, milestone.ID); err != nil {
			// Auto-completed milestones report a no-op.
			require.True(t, IsInvalidTransition(err) || IsIncompleteTasks(err))
		}
	}

	loaded, err := eng.Transaction(ctx, transaction.ID)
	require.NoError(t, err)

	assert.InDelta(t, 100, loaded.OverallProgress, 0.01)
	assert.Equal(t, models.TransactionStatusCompleted, loaded.Status)

	// A completed transaction rejects further mutation.
	_, err = eng.CompleteMilestone(ctx, transaction.ID, transaction.Milestones[1].ID)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
}

func TestEngine_CancelTransaction_Cascades(t *testing.T) {
	eng, sink, _ := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	changed, err := eng.CancelTransaction(ctx, transaction.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	loaded, err := eng.Transaction(ctx, transaction.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TransactionStatusCancelled, loaded.Status)
	assert.Empty(t, loaded.ActiveTasks)

	for _, milestone := range loaded.Milestones {
		assert.Equal(t, models.MilestoneStatusCancelled, milestone.Status)

		for _, task := range milestone.Tasks {
			assert.Equal(t, models.TaskStatusCancelled, task.Status)
		}
	}

	assert.Contains(t, sink.eventTypes(), events.TransactionCancelledEvent)

	// Cancelling twice is an invalid transition, as is any other mutation.
	_, err = eng.CancelTransaction(ctx, transaction.ID)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	_, err = eng.CompleteTask(ctx, transaction.ID, loaded.Milestones[0].Tasks[0].ID, "")
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
}

func TestEngine_RefreshProgress_FlagsDelayedOnce(t *testing.T) {
	eng, sink, clock := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, sink.alertCount())

	// Half the planned window passes with zero progress.
	clock.Advance(15 * 24 * time.Hour)

	refreshed, err := eng.RefreshProgress(ctx, transaction.ID)
	require.NoError(t, err)

	assert.Equal(t, models.CriticalPathDelayed, refreshed.CriticalPathStatus)
	require.Equal(t, 1, sink.alertCount())
	assert.Equal(t, models.AlertKindTimeline, sink.alerts[0].Kind)
	assert.Equal(t, models.AlertSeverityCritical, sink.alerts[0].Severity)

	// Unchanged health does not re-alert.
	_, err = eng.RefreshProgress(ctx, transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.alertCount())
}

func TestEngine_RefreshProgress_AtRisk(t *testing.T) {
	eng, sink, clock := newTestEngine(t, purchaseTemplate())
	ctx := context.Background()

	transaction, err := eng.CreateTransaction(ctx, "purchase-standard", "123 Main St", "", time.Time{}, time.Time{})
	require.NoError(t, err)

	// Complete the first milestone so progress sits at 50%.
	for _, task := range transaction.Milestones[0].Tasks {
		_, err = eng.CompleteTask(ctx, transaction.ID, task.ID, "")
		require.NoError(t, err)
	}

	// 18 of 30 days elapsed puts expectation at 60% against 50% actual.
	clock.Advance(18 * 24 * time.Hour)

	refreshed, err := eng.RefreshProgress(ctx, transaction.ID)
	require.NoError(t, err)

	assert.Equal(t, models.CriticalPathAtRisk, refreshed.CriticalPathStatus)
	require.Equal(t, 1, sink.alertCount())
	assert.Equal(t, models.AlertSeverityMedium, sink.alerts[0].Severity)
}
