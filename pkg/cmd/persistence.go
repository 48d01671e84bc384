package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/testpilot/pkg/persistence"
	"github.com/dukex/testpilot/pkg/persistence/file"
	"github.com/dukex/testpilot/pkg/persistence/postgresql"
	"github.com/dukex/testpilot/pkg/persistence/redis"
)

// NewPersistence dispatches on the URL scheme: postgresql://, redis:// or a
// file path (with or without the file:// prefix).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis":
		return redis.NewPersistence(ctx, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "redis", "rediss":
		return "redis"
	default:
		return "file"
	}
}
