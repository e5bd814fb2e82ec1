package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentos-dev/agentkernel/pkg/config"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// NewFromConfig opens the state store cfg selects. SQL stores have their
// schema created; the Redis store is pinged.
func NewFromConfig(ctx context.Context, cfg config.StateConfig) (StateStore, error) {
	switch cfg.Backend {
	case config.StateBackendFile, "":
		return NewFileStateStore(cfg.Dir)
	case config.StateBackendPostgres:
		return openSQL(ctx, Postgres, cfg.DSN)
	case config.StateBackendSQLite:
		return openSQL(ctx, SQLite, cfg.DSN)
	case config.StateBackendRedis:
		s := NewRedisStateStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Prefix)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", cfg.Backend)
	}
}

func openSQL(ctx context.Context, dialect Dialect, dsn string) (StateStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("KERNEL_STATE_DSN is required for %s state", dialect.Name)
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect.Name, err)
	}
	if dialect == SQLite {
		// An in-memory SQLite database lives on a single connection.
		db.SetMaxOpenConns(1)
	}
	s := NewSQLStateStore(db, dialect)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
