// Package file provides file-based persistence for transaction instances.
// Each transaction is stored as a JSON document under <root>/transactions.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dealflow/dealflow/pkg/models"
	"github.com/dealflow/dealflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a new file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) transactionsDir() string {
	return filepath.Join(fp.root, "transactions")
}

func (fp *Persistence) transactionPath(id string) string {
	return filepath.Join(fp.transactionsDir(), id+".json")
}

// Transactions returns every stored transaction instance.
func (fp *Persistence) Transactions(ctx context.Context) ([]*models.TransactionInstance, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	dir := os.DirFS(fp.transactionsDir())

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction files: %w", err)
	}

	transactions := make([]*models.TransactionInstance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		transaction, err := fp.readTransaction(id)
		if err != nil {
			return nil, err
		}

		transactions = append(transactions, transaction)
	}

	return transactions, nil
}

// TransactionByID returns a transaction by its identifier.
func (fp *Persistence) TransactionByID(ctx context.Context, id string) (*models.TransactionInstance, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.readTransaction(id)
}

func (fp *Persistence) readTransaction(id string) (*models.TransactionInstance, error) {
	data, err := os.ReadFile(fp.transactionPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewTransactionError("GetByID", id, persistence.ErrTransactionNotFound)
		}

		return nil, persistence.NewTransactionError("GetByID", id, err)
	}

	var transaction models.TransactionInstance

	if err := json.Unmarshal(data, &transaction); err != nil {
		return nil, persistence.NewTransactionError("GetByID", id, fmt.Errorf("%w: %w", persistence.ErrCorruptRecord, err))
	}

	return &transaction, nil
}

// SaveTransaction writes a transaction document, creating or replacing it.
func (fp *Persistence) SaveTransaction(ctx context.Context, transaction *models.TransactionInstance) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(fp.transactionsDir(), 0o755); err != nil {
		return persistence.NewTransactionError("Save", transaction.ID, err)
	}

	data, err := json.MarshalIndent(transaction, "", "  ")
	if err != nil {
		return persistence.NewTransactionError("Save", transaction.ID, err)
	}

	if err := os.WriteFile(fp.transactionPath(transaction.ID), data, 0o644); err != nil {
		return persistence.NewTransactionError("Save", transaction.ID, err)
	}

	return nil
}

// DeleteTransaction removes a transaction document.
func (fp *Persistence) DeleteTransaction(ctx context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.Remove(fp.transactionPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewTransactionError("Delete", id, persistence.ErrTransactionNotFound)
		}

		return persistence.NewTransactionError("Delete", id, err)
	}

	return nil
}
