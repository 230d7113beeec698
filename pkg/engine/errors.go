// Package engine provides standardized error types for state-engine operations.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDependencyNotSatisfied indicates a milestone or task was started
	// before its prerequisites completed.
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")

	// ErrIncompleteTasks indicates a milestone completion was attempted with
	// open tasks.
	ErrIncompleteTasks = errors.New("milestone has incomplete tasks")

	// ErrInvalidTransition indicates a mutation on a terminal transaction or
	// an entity in a state that does not permit the transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrMilestoneNotFound indicates an unknown milestone id within a transaction.
	ErrMilestoneNotFound = errors.New("milestone not found")

	// ErrTaskNotFound indicates an unknown task id within a transaction.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTemplateMismatch indicates the requested transaction type does not
	// match the template's type.
	ErrTemplateMismatch = errors.New("transaction type does not match template")
)

// TransitionError wraps state-transition failures with the operation and the
// entity involved.
type TransitionError struct {
	Op            string // Operation being performed (e.g., "StartMilestone", "CompleteTask")
	TransactionID string
	EntityID      string // Milestone or task ID if applicable
	Err           error
}

func (e *TransitionError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s failed for %s in transaction %s: %v", e.Op, e.EntityID, e.TransactionID, e.Err)
	}

	return fmt.Sprintf("%s failed for transaction %s: %v", e.Op, e.TransactionID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func (e *TransitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTransitionError creates a new transition error with context.
func NewTransitionError(op, transactionID, entityID string, err error) *TransitionError {
	return &TransitionError{
		Op:            op,
		TransactionID: transactionID,
		EntityID:      entityID,
		Err:           err,
	}
}

// IsDependencyNotSatisfied checks if an error indicates unmet prerequisites.
func IsDependencyNotSatisfied(err error) bool {
	return errors.Is(err, ErrDependencyNotSatisfied)
}

// IsIncompleteTasks checks if an error indicates open tasks on a milestone.
func IsIncompleteTasks(err error) bool {
	return errors.Is(err, ErrIncompleteTasks)
}

// IsInvalidTransition checks if an error indicates a forbidden state transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNotFound checks if an error indicates an unknown milestone or task id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMilestoneNotFound) || errors.Is(err, ErrTaskNotFound)
}
