package pgstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/querykit/internal/queryir"
)

// catalog caches the declared schemas.
type catalog struct {
	mu      sync.RWMutex
	schemas map[string]queryir.Schema
}

func newCatalog() *catalog {
	return &catalog{schemas: make(map[string]queryir.Schema)}
}

type columnRow struct {
	Entity   string
	Name     string
	Kind     string
	Nullable bool
}

func (c *catalog) load(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT entity, name, kind, nullable
		FROM querykit_columns
		ORDER BY entity ASC, position ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowToStructByPos[columnRow])
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	schemas := make(map[string]queryir.Schema)
	for _, r := range cols {
		kind, err := queryir.ParseKind(r.Kind)
		if err != nil {
			return fmt.Errorf("catalog %s.%s: %w", r.Entity, r.Name, err)
		}
		s := schemas[r.Entity]
		s.Entity = r.Entity
		s.Columns = append(s.Columns, queryir.Column{Name: r.Name, Kind: kind, Nullable: r.Nullable})
		schemas[r.Entity] = s
	}

	c.mu.Lock()
	c.schemas = schemas
	c.mu.Unlock()
	return nil
}

func (c *catalog) get(entity string) (queryir.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[entity]
	return s, ok
}

// define runs create unless schema is already declared, then caches it.
func (c *catalog) define(schema queryir.Schema, create func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.schemas[schema.Entity]; ok {
		if !slices.Equal(existing.Columns, schema.Columns) {
			return fmt.Errorf("define %s: entity already declared with different columns", schema.Entity)
		}
		return nil
	}
	if err := create(); err != nil {
		return err
	}
	c.schemas[schema.Entity] = schema
	return nil
}
