// Package backend opens the configured queryset backend and loads seed
// files into it.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm/logger"

	"github.com/roach88/querykit/internal/config"
	"github.com/roach88/querykit/internal/gormstore"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/memstore"
	"github.com/roach88/querykit/internal/pgstore"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/store"
)

// Target is a queryset backend that also owns the tables it queries.
type Target interface {
	queryset.Backend[ir.IRObject]

	// Define declares an entity's columns. Redefining an entity with the
	// same columns is a no-op.
	Define(ctx context.Context, schema queryir.Schema) error

	// Insert adds records to a defined entity, all or none.
	Insert(ctx context.Context, entity string, records ...ir.IRObject) error

	Close() error
}

// Open opens the backend cfg names and applies cfg.Seed when set.
func Open(ctx context.Context, cfg config.BackendConfig, log *slog.Logger) (Target, error) {
	if log == nil {
		log = slog.Default()
	}

	t, err := open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Driver, err)
	}
	log.Debug("backend opened", "driver", cfg.Driver, "dsn", redact(cfg))

	if cfg.Seed != "" {
		seed, err := LoadSeed(cfg.Seed)
		if err != nil {
			t.Close()
			return nil, err
		}
		n, err := seed.Apply(ctx, t)
		if err != nil {
			t.Close()
			return nil, err
		}
		log.Info("seed applied", "file", cfg.Seed, "entities", len(seed.Entities), "records", n)
	}
	return t, nil
}

func open(ctx context.Context, cfg config.BackendConfig, log *slog.Logger) (Target, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemory(), nil
	case config.DriverSQLite:
		return store.Open(cfg.DSN)
	case config.DriverGorm:
		level := logger.Silent
		if log.Enabled(ctx, slog.LevelDebug) {
			level = logger.Info
		}
		return gormstore.Open(ctx, gormstore.Config{Path: cfg.DSN, LogLevel: level})
	case config.DriverPostgres:
		st, err := pgstore.Open(ctx, pgstore.Config{DSN: cfg.DSN, Namespace: cfg.Namespace, Logger: log})
		if err != nil {
			return nil, err
		}
		return postgres{st}, nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

// redact hides Postgres credentials; file paths are logged as is.
func redact(cfg config.BackendConfig) string {
	if cfg.Driver == config.DriverPostgres {
		return "<redacted>"
	}
	return cfg.DSN
}

type memory struct {
	*memstore.Store
}

// NewMemory returns an empty in-memory Target.
func NewMemory() Target {
	return memory{memstore.New()}
}

func (m memory) Define(_ context.Context, schema queryir.Schema) error {
	return m.Store.Define(schema)
}

func (m memory) Insert(_ context.Context, entity string, records ...ir.IRObject) error {
	m.Store.Insert(entity, records...)
	return nil
}

func (memory) Close() error { return nil }

type postgres struct {
	*pgstore.Store
}

func (p postgres) Close() error {
	p.Store.Close()
	return nil
}
