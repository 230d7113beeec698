// Package persistence provides the storage abstraction for transaction
// instances. The engine operates on in-memory instances and relies on an
// implementation of this interface to persist and reload them, so storage
// technology is swappable without touching engine logic.
package persistence

import (
	"context"

	"github.com/dealflow/dealflow/pkg/models"
)

type Persistence interface {
	Transactions(ctx context.Context) ([]*models.TransactionInstance, error)
	TransactionByID(ctx context.Context, id string) (*models.TransactionInstance, error)
	SaveTransaction(ctx context.Context, transaction *models.TransactionInstance) error
	DeleteTransaction(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
