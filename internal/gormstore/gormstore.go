// Package gormstore is a queryset backend on GORM with the pure-Go
// glebarez SQLite driver.
//
// It shares its table layout with package store but runs without custom
// SQL functions, so it compiles with querysql.SQLiteBasic: case folding is
// ASCII only, and diacritic folding and MATCHES are unsupported.
package gormstore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/querysql"
)

const dialect = querysql.SQLiteBasic

var compiler = querysql.Compiler{Dialect: dialect}

// Config holds SQLite-specific configuration.
type Config struct {
	Path     string
	LogLevel logger.LogLevel
}

// Store implements queryset.Backend for ir.IRObject records on GORM.
type Store struct {
	db *gorm.DB

	mu      sync.RWMutex
	schemas map[string]queryir.Schema
}

var _ queryset.Backend[ir.IRObject] = (*Store)(nil)

// Open opens the database, migrates the catalog and loads declared
// schemas.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Silent
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // SQLite only supports 1 writer
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, schemas: make(map[string]queryir.Schema)}
	if err := s.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying GORM database instance.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Column{}); err != nil {
		return fmt.Errorf("failed to migrate catalog: %w", err)
	}

	var rows []Column
	if err := s.db.WithContext(ctx).Order("entity ASC, position ASC").Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	schemas, err := schemasOf(rows)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	s.mu.Lock()
	s.schemas = schemas
	s.mu.Unlock()
	return nil
}

// Define creates the entity table and records its columns.
func (s *Store) Define(ctx context.Context, schema queryir.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.schemas[schema.Entity]; ok {
		if !slices.Equal(existing.Columns, schema.Columns) {
			return fmt.Errorf("define %s: entity already declared with different columns", schema.Entity)
		}
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(dialect.CreateTable(schema.Entity, schema)).Error; err != nil {
			return err
		}
		rows := columnsOf(schema)
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("define %s: %w", schema.Entity, err)
	}

	s.schemas[schema.Entity] = schema
	return nil
}

// Insert appends records in one transaction.
func (s *Store) Insert(ctx context.Context, entity string, records ...ir.IRObject) error {
	schema, ok := s.Schema(entity)
	if !ok {
		return fmt.Errorf("insert: unknown entity %q", entity)
	}

	stmt := dialect.Insert(entity, schema)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, rec := range records {
			args, err := dialect.EncodeRecord(schema, rec)
			if err != nil {
				return fmt.Errorf("insert record %d: %w", i, err)
			}
			if err := tx.Exec(stmt, args...).Error; err != nil {
				return fmt.Errorf("insert record %d: %w", i, err)
			}
		}
		return nil
	})
}

// Schema returns the declared schema of entity.
func (s *Store) Schema(entity string) (queryir.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[entity]
	return schema, ok
}

func (s *Store) ResolveFieldPath(desc queryir.Descriptor, path queryir.Path) (queryir.FieldRef, error) {
	schema, ok := s.Schema(desc.Entity)
	if !ok {
		return queryir.FieldRef{}, queryset.NewUnknownFieldError(desc.Entity, path)
	}
	return querysql.SchemaResolver(schema)(path)
}

func (s *Store) Compile(desc queryir.Descriptor, fetch queryir.Fetch) (queryset.FetchSpec, error) {
	resolve := func(p queryir.Path) (queryir.FieldRef, error) { return s.ResolveFieldPath(desc, p) }
	q, err := compiler.Compile(desc, desc.Entity, fetch, resolve)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Store) Decompose(spec queryset.FetchSpec) (queryir.Descriptor, queryir.Fetch, error) {
	q, err := query(spec)
	if err != nil {
		return queryir.Descriptor{}, queryir.Fetch{}, err
	}
	return q.Desc, q.Fetch.Clone(), nil
}

func query(spec queryset.FetchSpec) (*querysql.Query, error) {
	q, ok := spec.(*querysql.Query)
	if !ok || q.Dialect != dialect {
		return nil, fmt.Errorf("gormstore: foreign fetch spec %T", spec)
	}
	return q, nil
}

func (s *Store) Execute(ctx context.Context, spec queryset.FetchSpec) ([]ir.IRObject, error) {
	q, err := query(spec)
	if err != nil {
		return nil, err
	}
	schema, ok := s.Schema(q.Desc.Entity)
	if !ok {
		return nil, fmt.Errorf("gormstore: unknown entity %q", q.Desc.Entity)
	}

	stmt := q.Select(dialect.Columns(schema)...)
	rows, err := s.db.WithContext(ctx).Raw(stmt.SQL, stmt.Args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", q.Desc.Entity, err)
	}
	defer rows.Close()
	return decodeRows(rows, schema)
}

func decodeRows(rows *sql.Rows, schema queryir.Schema) ([]ir.IRObject, error) {
	raw := make([]any, len(schema.Columns))
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var out []ir.IRObject
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec, err := dialect.DecodeRow(schema, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ExecuteCount(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	q, err := query(spec)
	if err != nil {
		return 0, err
	}
	stmt := q.Count()
	var n int
	if err := s.db.WithContext(ctx).Raw(stmt.SQL, stmt.Args...).Row().Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Desc.Entity, err)
	}
	return n, nil
}

func (s *Store) ExecuteDelete(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	q, err := query(spec)
	if err != nil {
		return 0, err
	}
	stmt := q.Delete()
	res := s.db.WithContext(ctx).Exec(stmt.SQL, stmt.Args...)
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", q.Desc.Entity, res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *Store) Identify(record ir.IRObject) string {
	return ir.RecordKey(record)
}
