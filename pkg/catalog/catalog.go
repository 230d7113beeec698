// Package catalog holds the immutable workflow template definitions that
// transactions are instantiated from. Templates are validated at registration
// and never mutate afterwards, so reads need no coordination beyond the map
// guard around concurrent registration.
package catalog

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dealflow/dealflow/pkg/models"
)

type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*models.WorkflowTemplate
	validate  *validator.Validate
	logger    *slog.Logger
}

// New creates an empty template catalog.
func New(logger *slog.Logger) *Catalog {
	return &Catalog{
		templates: make(map[string]*models.WorkflowTemplate),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "catalog"),
	}
}

// Register validates a template and adds it to the catalog. Validation covers
// struct constraints, milestone order contiguity, and acyclicity of every
// milestone's task-dependency graph. A template that fails validation is
// rejected before any transaction can be built from it.
func (c *Catalog) Register(template *models.WorkflowTemplate) error {
	if err := c.validate.Struct(template); err != nil {
		return NewValidationError(template.ID, "struct validation failed", fmt.Errorf("%w: %w", ErrInvalidTemplate, err))
	}

	if err := validateMilestoneOrders(template); err != nil {
		return err
	}

	for _, milestone := range template.Milestones {
		if err := validateTaskGraph(template.ID, milestone); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.templates[template.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTemplateAlreadyExists, template.ID)
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	c.templates[template.ID] = template

	c.logger.Info("Registered workflow template",
		"template_id", template.ID,
		"transaction_type", template.TransactionType,
		"milestones", len(template.Milestones))

	return nil
}

// Get returns the template registered under the given id.
func (c *Catalog) Get(id string) (*models.WorkflowTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	template, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	return template, nil
}

// ListByType returns every template for the given transaction type. An empty
// type returns all templates.
func (c *Catalog) ListByType(transactionType models.TransactionType) []*models.WorkflowTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	templates := make([]*models.WorkflowTemplate, 0, len(c.templates))

	for _, template := range c.templates {
		if transactionType != "" && template.TransactionType != transactionType {
			continue
		}

		templates = append(templates, template)
	}

	return templates
}

// validateMilestoneOrders enforces that order values are unique and
// contiguous starting at 1, and that milestone dependencies reference
// existing earlier orders.
func validateMilestoneOrders(template *models.WorkflowTemplate) error {
	seen := make(map[int]bool, len(template.Milestones))

	for _, milestone := range template.Milestones {
		if seen[milestone.Order] {
			return NewValidationError(template.ID,
				fmt.Sprintf("duplicate milestone order %d", milestone.Order),
				ErrInvalidMilestoneOrder)
		}

		seen[milestone.Order] = true
	}

	for order := 1; order <= len(template.Milestones); order++ {
		if !seen[order] {
			return NewValidationError(template.ID,
				fmt.Sprintf("milestone orders are not contiguous, missing order %d", order),
				ErrInvalidMilestoneOrder)
		}
	}

	for _, milestone := range template.Milestones {
		for _, dep := range milestone.DependsOnOrders {
			if dep >= milestone.Order || !seen[dep] {
				return NewValidationError(template.ID,
					fmt.Sprintf("milestone %q at order %d depends on invalid order %d", milestone.Name, milestone.Order, dep),
					ErrInvalidMilestoneOrder)
			}
		}
	}

	return nil
}

// validateTaskGraph verifies every task dependency references a sibling task
// and that the dependency graph is acyclic, via Kahn's topological sort.
func validateTaskGraph(templateID string, milestone *models.MilestoneTemplate) error {
	ids := make(map[string]bool, len(milestone.Tasks))
	for _, task := range milestone.Tasks {
		ids[task.ID] = true
	}

	indegree := make(map[string]int, len(milestone.Tasks))
	dependents := make(map[string][]string, len(milestone.Tasks))

	for _, task := range milestone.Tasks {
		for _, dep := range task.DependsOn {
			if !ids[dep] {
				return NewValidationError(templateID,
					fmt.Sprintf("task %q depends on unknown sibling %q in milestone %q", task.ID, dep, milestone.Name),
					ErrUnknownTaskDependency)
			}

			indegree[task.ID]++
			dependents[dep] = append(dependents[dep], task.ID)
		}

		for _, blocked := range task.Blocks {
			if !ids[blocked] {
				return NewValidationError(templateID,
					fmt.Sprintf("task %q blocks unknown sibling %q in milestone %q", task.ID, blocked, milestone.Name),
					ErrUnknownTaskDependency)
			}
		}
	}

	queue := make([]string, 0, len(milestone.Tasks))

	for _, task := range milestone.Tasks {
		if indegree[task.ID] == 0 {
			queue = append(queue, task.ID)
		}
	}

	sorted := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted++

		for _, next := range dependents[current] {
			indegree[next]--

			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if sorted != len(milestone.Tasks) {
		return NewValidationError(templateID,
			fmt.Sprintf("task dependencies form a cycle in milestone %q", milestone.Name),
			ErrCyclicTaskDependency)
	}

	return nil
}
