// Package backends constructs storage backends from configuration.
package backends

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/internal/storage/clickhouse"
	"github.com/fidde/log_dashboard/internal/storage/memory"
	"github.com/fidde/log_dashboard/internal/storage/mongo"
	"github.com/fidde/log_dashboard/internal/storage/seed"
	"github.com/fidde/log_dashboard/internal/storage/sqlite"
)

// Backend names accepted by Open.
const (
	Mongo      = "mongo"
	SQLite     = "sqlite"
	ClickHouse = "clickhouse"
	Memory     = "memory"
)

// Names lists the supported backends.
var Names = []string{Mongo, SQLite, ClickHouse, Memory}

// Config holds storage configuration.
type Config struct {
	// Backend selects the storage backend: "mongo", "sqlite", "clickhouse" or "memory"
	Backend string

	// MongoDB-specific config
	Mongo mongo.Config

	// SQLite database path
	SQLitePath string

	// ClickHouse-specific config
	ClickHouse *clickhouse.ConnectionConfig

	// MemorySeed is an optional NDJSON (or .zst) file preloaded into the memory backend
	MemorySeed string
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() Config {
	return Config{
		Backend:    Mongo,
		Mongo:      mongo.DefaultConfig(),
		SQLitePath: "logdash.db",
		ClickHouse: clickhouse.DefaultConfig(),
	}
}

// Open creates a storage backend based on configuration.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (storage.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case Mongo:
		logger.Info("using MongoDB storage", "database", cfg.Mongo.Database)
		store, err := mongo.NewStore(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, fmt.Errorf("creating MongoDB store: %w", err)
		}
		return store, nil

	case SQLite:
		logger.Info("using SQLite storage", "path", cfg.SQLitePath)
		store, err := sqlite.New(sqlite.DefaultConfig(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("creating SQLite store: %w", err)
		}
		return store, nil

	case ClickHouse:
		chCfg := cfg.ClickHouse
		if chCfg == nil {
			chCfg = clickhouse.DefaultConfig()
		}
		logger.Info("using ClickHouse storage", "addr", chCfg.Addr)
		store, err := clickhouse.NewStore(ctx, chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating ClickHouse store: %w", err)
		}
		return store, nil

	case Memory:
		store := memory.New()
		if cfg.MemorySeed != "" {
			n, err := seed.Load(ctx, store, cfg.MemorySeed)
			if err != nil {
				return nil, fmt.Errorf("loading memory seed: %w", err)
			}
			logger.Info("using in-memory storage", "seed", cfg.MemorySeed, "records", n)
		} else {
			logger.Info("using in-memory storage")
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: mongo, sqlite, clickhouse, memory)", cfg.Backend)
	}
}
