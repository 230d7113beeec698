package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dealflow/dealflow/pkg/persistence"
	"github.com/dealflow/dealflow/pkg/persistence/file"
	"github.com/dealflow/dealflow/pkg/persistence/postgresql"
	"github.com/dealflow/dealflow/pkg/persistence/redis"
)

// NewPersistence selects a store from the database URL scheme. Postgres and
// Redis URLs get their drivers; anything else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres persistence: %w", err)
		}

		return p, nil
	case redis.IsRedisURL(databaseURL):
		p, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}
