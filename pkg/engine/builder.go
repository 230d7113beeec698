package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dealflow/dealflow/pkg/models"
)

// Builder clones a workflow template into a live transaction instance. Every
// milestone and task gets a freshly generated id, and template-scoped
// dependency edges are translated to the new instance ids. Scheduling is
// derived here: milestone target dates chain from now, and task due dates are
// spread across each milestone's window.
type Builder struct {
	clock clockwork.Clock
}

// NewBuilder creates a builder that derives dates from the given clock.
func NewBuilder(clock clockwork.Clock) *Builder {
	return &Builder{clock: clock}
}

// Build instantiates a template. The returned instance has every milestone
// NOT_STARTED; auto-start of the first milestone is the state engine's job.
func (b *Builder) Build(
	template *models.WorkflowTemplate,
	propertyAddress string,
	contractDate time.Time,
	closingDate time.Time,
) *models.TransactionInstance {
	now := b.clock.Now().UTC()

	instance := &models.TransactionInstance{
		ID:                  uuid.New().String(),
		WorkflowID:          template.ID,
		PropertyAddress:     propertyAddress,
		TransactionType:     template.TransactionType,
		ContractDate:        contractDate,
		ClosingDate:         closingDate,
		Status:              models.TransactionStatusNew,
		CriticalPathStatus:  models.CriticalPathOnTrack,
		Milestones:          make([]*models.MilestoneInstance, 0, len(template.Milestones)),
		CompletedMilestones: make(map[string]bool),
		ActiveTasks:         make(map[string]bool),
		OverdueTasks:        make(map[string]bool),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	// Clone in order position, whatever the declaration order in the
	// template document.
	ordered := append([]*models.MilestoneTemplate(nil), template.Milestones...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	// Milestone targets chain: the first milestone's window opens now, each
	// subsequent one opens at the previous target.
	windowStart := now

	for _, milestoneTemplate := range ordered {
		target := windowStart.AddDate(0, 0, milestoneTemplate.EstimatedDays)
		instance.Milestones = append(instance.Milestones, b.buildMilestone(milestoneTemplate, windowStart, target))
		windowStart = target
	}

	return instance
}

func (b *Builder) buildMilestone(
	template *models.MilestoneTemplate,
	windowStart time.Time,
	target time.Time,
) *models.MilestoneInstance {
	milestone := &models.MilestoneInstance{
		ID:              uuid.New().String(),
		Name:            template.Name,
		Order:           template.Order,
		EstimatedDays:   template.EstimatedDays,
		IsCritical:      template.IsCritical,
		CanRunParallel:  template.CanRunParallel,
		AutoStart:       template.AutoStart,
		AutoComplete:    template.AutoComplete,
		DependsOnOrders: append([]int(nil), template.DependsOnOrders...),
		Status:          models.MilestoneStatusNotStarted,
		TargetDate:      target,
		Tasks:           make([]*models.TaskInstance, 0, len(template.Tasks)),
	}

	// Fresh ids first, so every dependency edge can be translated through the
	// remap table regardless of declaration order.
	remap := make(map[string]string, len(template.Tasks))
	for _, taskTemplate := range template.Tasks {
		remap[taskTemplate.ID] = uuid.New().String()
	}

	window := target.Sub(windowStart)

	for i, taskTemplate := range template.Tasks {
		// Earlier tasks come due earlier; the last task lands on the target.
		due := windowStart.Add(window * time.Duration(i+1) / time.Duration(len(template.Tasks)))

		milestone.Tasks = append(milestone.Tasks, &models.TaskInstance{
			ID:                 remap[taskTemplate.ID],
			Name:               taskTemplate.Name,
			Priority:           taskTemplate.Priority,
			Kind:               taskTemplate.Kind,
			RequiredDocuments:  append([]string(nil), taskTemplate.RequiredDocuments...),
			CompletionCriteria: append([]string(nil), taskTemplate.CompletionCriteria...),
			DependsOn:          translateIDs(taskTemplate.DependsOn, remap),
			Blocks:             translateIDs(taskTemplate.Blocks, remap),
			Status:             models.TaskStatusPending,
			DueDate:            due,
		})
	}

	return milestone
}

// translateIDs maps template-scoped task ids to instance ids. Ids without a
// mapping are dropped; catalog validation guarantees none exist in practice.
func translateIDs(ids []string, remap map[string]string) []string {
	if len(ids) == 0 {
		return nil
	}

	translated := make([]string, 0, len(ids))

	for _, id := range ids {
		if mapped, ok := remap[id]; ok {
			translated = append(translated, mapped)
		}
	}

	return translated
}
