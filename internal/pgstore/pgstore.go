// Package pgstore is the PostgreSQL queryset backend, built on a pgx
// connection pool.
//
// Tables follow the layout in package querysql: strings use the C
// collation, times are TIMESTAMPTZ and arrays and objects are JSONB.
// Diacritic folding needs the unaccent extension; Open installs it when
// the role may, and otherwise diacritic-insensitive predicates fail with
// UNSUPPORTED.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

const dialect = querysql.Postgres

var compiler = querysql.Compiler{Dialect: dialect}

// Config holds database configuration.
type Config struct {
	DSN string

	// Namespace is the Postgres schema holding the entity tables and the
	// catalog. Empty uses the connection's default search_path.
	Namespace string

	MaxConns int32
	Logger   *slog.Logger
}

// Store implements queryset.Backend for ir.IRObject records on Postgres.
//
// Thread-safety: methods are safe for concurrent use; the pool hands out
// one connection per statement.
type Store struct {
	pool     *pgxpool.Pool
	unaccent bool
	logger   *slog.Logger
	catalog  *catalog
}

var _ queryset.Backend[ir.IRObject] = (*Store)(nil)

// Open connects, prepares the namespace and catalog, and loads declared
// schemas.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.Namespace != "" {
		poolConfig.ConnConfig.RuntimeParams["search_path"] = pgx.Identifier{cfg.Namespace}.Sanitize() + ", public"
	}
	poolConfig.MaxConns = 5
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Minute * 30
	poolConfig.MaxConnIdleTime = time.Minute * 5
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{pool: pool, logger: logger, catalog: newCatalog()}
	if err := s.bootstrap(ctx, cfg.Namespace); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context, namespace string) error {
	if namespace != "" {
		if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{namespace}.Sanitize()); err != nil {
			return fmt.Errorf("failed to create namespace: %w", err)
		}
	}

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS unaccent SCHEMA public"); err != nil {
		s.logger.Warn("unaccent extension unavailable; diacritic folding disabled", "error", err)
	}
	var installed bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'unaccent')").Scan(&installed)
	if err != nil {
		return fmt.Errorf("failed to check extensions: %w", err)
	}
	s.unaccent = installed

	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return s.catalog.load(ctx, s.pool)
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the database connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if err := tx.Rollback(ctx); err != nil {
				s.logger.Error("failed to rollback transaction", "error", err)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Define creates the entity table and records its columns.
func (s *Store) Define(ctx context.Context, schema queryir.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	return s.catalog.define(schema, func() error {
		return s.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, dialect.CreateTable(schema.Entity, schema)); err != nil {
				return fmt.Errorf("define %s: %w", schema.Entity, err)
			}
			for i, c := range schema.Columns {
				_, err := tx.Exec(ctx, `
					INSERT INTO querykit_columns (entity, name, kind, nullable, position)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (entity, name) DO UPDATE SET
						kind = EXCLUDED.kind, nullable = EXCLUDED.nullable, position = EXCLUDED.position
				`, schema.Entity, c.Name, c.Kind.String(), c.Nullable, i)
				if err != nil {
					return fmt.Errorf("define %s: catalog: %w", schema.Entity, err)
				}
			}
			return nil
		})
	})
}

// Insert appends records in one transaction, batching the statements.
func (s *Store) Insert(ctx context.Context, entity string, records ...ir.IRObject) error {
	schema, ok := s.catalog.get(entity)
	if !ok {
		return fmt.Errorf("insert: unknown entity %q", entity)
	}

	stmt := dialect.Insert(entity, schema)
	batch := &pgx.Batch{}
	for i, rec := range records {
		args, err := dialect.EncodeRecord(schema, rec)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
		batch.Queue(stmt, args...)
	}

	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Schema returns the declared schema of entity.
func (s *Store) Schema(entity string) (queryir.Schema, bool) {
	return s.catalog.get(entity)
}
