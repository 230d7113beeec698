// Package postgresql provides PostgreSQL persistence for transaction instances.
// Instances are stored as JSONB documents with a few indexed columns for
// listing and status filtering.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/dealflow/dealflow/pkg/models"
	"github.com/dealflow/dealflow/pkg/persistence"
	"github.com/dealflow/dealflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer and runs schema
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:     database,
		logger: logger,
	}, nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS transactions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				property_address TEXT NOT NULL DEFAULT '',
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
			CREATE INDEX IF NOT EXISTS idx_transactions_workflow_id ON transactions(workflow_id);
		`,
	}
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Transactions returns all transaction instances from the database.
func (p *Persistence) Transactions(ctx context.Context) ([]*models.TransactionInstance, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT document FROM transactions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	transactions := make([]*models.TransactionInstance, 0)

	for rows.Next() {
		var document []byte

		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}

		var transaction models.TransactionInstance

		if err := json.Unmarshal(document, &transaction); err != nil {
			return nil, fmt.Errorf("%w: %w", persistence.ErrCorruptRecord, err)
		}

		transactions = append(transactions, &transaction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}

	return transactions, nil
}

// TransactionByID returns a transaction instance by its identifier.
func (p *Persistence) TransactionByID(ctx context.Context, id string) (*models.TransactionInstance, error) {
	var document []byte

	err := p.db.QueryRowContext(ctx, "SELECT document FROM transactions WHERE id = $1", id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewTransactionError("GetByID", id, persistence.ErrTransactionNotFound)
	}

	if err != nil {
		return nil, persistence.NewTransactionError("GetByID", id, err)
	}

	var transaction models.TransactionInstance

	if err := json.Unmarshal(document, &transaction); err != nil {
		return nil, persistence.NewTransactionError("GetByID", id, fmt.Errorf("%w: %w", persistence.ErrCorruptRecord, err))
	}

	return &transaction, nil
}

// SaveTransaction upserts a transaction instance document.
func (p *Persistence) SaveTransaction(ctx context.Context, transaction *models.TransactionInstance) error {
	document, err := json.Marshal(transaction)
	if err != nil {
		return persistence.NewTransactionError("Save", transaction.ID, err)
	}

	upsertSQL := `
		INSERT INTO transactions (id, workflow_id, status, property_address, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			property_address = EXCLUDED.property_address,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, upsertSQL,
		transaction.ID,
		transaction.WorkflowID,
		string(transaction.Status),
		transaction.PropertyAddress,
		document,
		transaction.CreatedAt,
		transaction.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTransactionError("Save", transaction.ID, err)
	}

	return nil
}

// DeleteTransaction removes a transaction instance.
func (p *Persistence) DeleteTransaction(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = $1", id)
	if err != nil {
		return persistence.NewTransactionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTransactionError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewTransactionError("Delete", id, persistence.ErrTransactionNotFound)
	}

	return nil
}
