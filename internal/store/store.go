package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/querykit/internal/eval"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial catalog
// 1 - Added index on querykit_columns(entity, position)
const currentSchemaVersion = 1

// DriverName is the database/sql driver registered by this package. Its
// connections carry the qk_fold and regexp functions.
const DriverName = "sqlite3_querykit"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("qk_fold", fold, true); err != nil {
				return err
			}
			return conn.RegisterFunc("regexp", matchRegexp, true)
		},
	})
}

func fold(v any, opts string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	o, ok := queryir.ParseOptions(opts)
	if !ok {
		return s
	}
	return eval.Fold(s, o)
}

var patterns sync.Map // string -> *regexp.Regexp

// matchRegexp implements "subject REGEXP pattern". A null operand yields
// null.
func matchRegexp(pattern, subject any) (any, error) {
	p, ok := pattern.(string)
	if !ok {
		return nil, nil
	}
	s, ok := subject.(string)
	if !ok {
		return nil, nil
	}
	re, cached := patterns.Load(p)
	if !cached {
		compiled, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("regexp %q: %w", p, err)
		}
		re, _ = patterns.LoadOrStore(p, compiled)
	}
	return re.(*regexp.Regexp).MatchString(s), nil
}

// Store keeps entity tables in a SQLite database and implements
// queryset.Backend for ir.IRObject records.
//
// Thread-safety: methods are safe for concurrent use. The schema cache is
// guarded by a RWMutex; the database allows one connection at a time.
type Store struct {
	db *sql.DB

	mu      sync.RWMutex
	schemas map[string]queryir.Schema
}

var _ queryset.Backend[ir.IRObject] = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically, then loads the
// declared schemas.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, schemas: make(map[string]queryir.Schema)}
	if err := s.loadSchemas(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the catalog if it doesn't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 indexes the catalog in column order for loadSchemas.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_querykit_columns_position
		ON querykit_columns(entity, position)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
