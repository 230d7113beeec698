// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTransactionNotFound indicates a transaction was not found by the given identifier.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionAlreadyExists indicates a transaction with the same identifier already exists.
	ErrTransactionAlreadyExists = errors.New("transaction already exists")

	// ErrCorruptRecord indicates a stored transaction could not be decoded.
	ErrCorruptRecord = errors.New("corrupt transaction record")
)

// TransactionError wraps transaction-related storage errors with additional context.
type TransactionError struct {
	Op            string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	TransactionID string // Transaction ID if applicable
	Err           error  // Underlying error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s operation failed for transaction %s: %v", e.Op, e.TransactionID, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for transaction errors.
func (e *TransactionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTransactionError creates a new transaction error with context.
func NewTransactionError(op, transactionID string, err error) *TransactionError {
	return &TransactionError{
		Op:            op,
		TransactionID: transactionID,
		Err:           err,
	}
}

// IsTransactionNotFound checks if an error indicates a transaction was not found.
func IsTransactionNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

// IsCorruptRecord checks if an error indicates an undecodable stored record.
func IsCorruptRecord(err error) bool {
	return errors.Is(err, ErrCorruptRecord)
}
