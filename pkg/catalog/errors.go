// Package catalog provides standardized error types for template operations.
package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound indicates no template is registered under the given id.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrTemplateAlreadyExists indicates a template with the same id is already registered.
	ErrTemplateAlreadyExists = errors.New("workflow template already exists")

	// ErrInvalidTemplate indicates a template failed validation at registration.
	ErrInvalidTemplate = errors.New("invalid workflow template")

	// ErrCyclicTaskDependency indicates a milestone's task-dependency graph has a cycle.
	ErrCyclicTaskDependency = errors.New("cyclic task dependency")

	// ErrUnknownTaskDependency indicates a task references a dependency outside its milestone.
	ErrUnknownTaskDependency = errors.New("unknown task dependency")

	// ErrInvalidMilestoneOrder indicates milestone order values are not unique and contiguous.
	ErrInvalidMilestoneOrder = errors.New("invalid milestone order")
)

// ValidationError wraps template validation failures with context. A template
// that fails validation is never registered, so these surface before any
// transaction can be built from it.
type ValidationError struct {
	TemplateID string
	Detail     string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("template %s failed validation: %s (%v)", e.TemplateID, e.Detail, e.Err)
	}

	return fmt.Sprintf("template %s failed validation: %v", e.TemplateID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(templateID, detail string, err error) *ValidationError {
	return &ValidationError{
		TemplateID: templateID,
		Detail:     detail,
		Err:        err,
	}
}

// IsValidationError checks if an error came from template validation.
func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}

// IsTemplateNotFound checks if an error indicates an unknown template id.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}
