// Package redis provides Redis persistence for transaction instances.
// Each instance is stored as a JSON value under a keyed namespace, with a set
// tracking known transaction ids for listing.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dealflow/dealflow/pkg/models"
	"github.com/dealflow/dealflow/pkg/persistence"
)

const (
	transactionKeyPrefix = "dealflow:transactions:"
	transactionIndexKey  = "dealflow:transactions"
)

// Persistence implements the persistence layer for Redis.
type Persistence struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

// NewPersistence creates a Redis persistence layer from a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis client.
func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Transactions returns every stored transaction instance.
func (p *Persistence) Transactions(ctx context.Context) ([]*models.TransactionInstance, error) {
	ids, err := p.client.SMembers(ctx, transactionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction ids: %w", err)
	}

	transactions := make([]*models.TransactionInstance, 0, len(ids))

	for _, id := range ids {
		transaction, err := p.TransactionByID(ctx, id)
		if err != nil {
			// An id left in the index after deletion is not fatal.
			if persistence.IsTransactionNotFound(err) {
				continue
			}

			return nil, err
		}

		transactions = append(transactions, transaction)
	}

	return transactions, nil
}

// TransactionByID returns a transaction instance by its identifier.
func (p *Persistence) TransactionByID(ctx context.Context, id string) (*models.TransactionInstance, error) {
	data, err := p.client.Get(ctx, transactionKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewTransactionError("GetByID", id, persistence.ErrTransactionNotFound)
	}

	if err != nil {
		return nil, persistence.NewTransactionError("GetByID", id, err)
	}

	var transaction models.TransactionInstance

	if err := json.Unmarshal(data, &transaction); err != nil {
		return nil, persistence.NewTransactionError("GetByID", id, fmt.Errorf("%w: %w", persistence.ErrCorruptRecord, err))
	}

	return &transaction, nil
}

// SaveTransaction stores a transaction instance and indexes its id.
func (p *Persistence) SaveTransaction(ctx context.Context, transaction *models.TransactionInstance) error {
	data, err := json.Marshal(transaction)
	if err != nil {
		return persistence.NewTransactionError("Save", transaction.ID, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, transactionKeyPrefix+transaction.ID, data, 0)
	pipe.SAdd(ctx, transactionIndexKey, transaction.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewTransactionError("Save", transaction.ID, err)
	}

	return nil
}

// DeleteTransaction removes a transaction instance and its index entry.
func (p *Persistence) DeleteTransaction(ctx context.Context, id string) error {
	deleted, err := p.client.Del(ctx, transactionKeyPrefix+id).Result()
	if err != nil {
		return persistence.NewTransactionError("Delete", id, err)
	}

	if err := p.client.SRem(ctx, transactionIndexKey, id).Err(); err != nil {
		return persistence.NewTransactionError("Delete", id, err)
	}

	if deleted == 0 {
		return persistence.NewTransactionError("Delete", id, persistence.ErrTransactionNotFound)
	}

	return nil
}

// IsRedisURL reports whether the given database URL targets Redis.
func IsRedisURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "redis://") || strings.HasPrefix(databaseURL, "rediss://")
}
