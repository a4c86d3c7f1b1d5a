package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/querysql"
)

// Define creates the table for schema and records it in the catalog.
// Redefining an entity with the same columns is a no-op; changing the
// columns of an existing entity is an error.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("define %s: begin: %w", schema.Entity, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, querysql.SQLite.CreateTable(schema.Entity, schema)); err != nil {
		return fmt.Errorf("define %s: create table: %w", schema.Entity, err)
	}
	for _, r := range marshalSchema(schema) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO querykit_columns (entity, name, kind, nullable, position)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entity, name) DO UPDATE SET
				kind = excluded.kind, nullable = excluded.nullable, position = excluded.position
		`, r.Entity, r.Name, r.Kind, r.Nullable, r.Position)
		if err != nil {
			return fmt.Errorf("define %s: catalog: %w", schema.Entity, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("define %s: commit: %w", schema.Entity, err)
	}

	s.schemas[schema.Entity] = schema
	return nil
}

// Insert appends records to a declared entity in one transaction. Missing
// fields are stored as null; fields outside the schema are rejected and
// nothing is written.
func (s *Store) Insert(ctx context.Context, entity string, records ...ir.IRObject) error {
	schema, ok := s.Schema(entity)
	if !ok {
		return fmt.Errorf("insert: unknown entity %q", entity)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert %s: begin: %w", entity, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, querysql.SQLite.Insert(entity, schema))
	if err != nil {
		return fmt.Errorf("insert %s: prepare: %w", entity, err)
	}
	defer stmt.Close()

	for i, rec := range records {
		args, err := querysql.SQLite.EncodeRecord(schema, rec)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Schema returns the declared schema of entity.
func (s *Store) Schema(entity string) (queryir.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[entity]
	return schema, ok
}

// Entities returns the declared entity names in sorted order.
func (s *Store) Entities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// loadSchemas replaces the cache with the catalog contents.
func (s *Store) loadSchemas(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity, name, kind, nullable, position
		FROM querykit_columns
		ORDER BY entity ASC, position ASC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var catalog []catalogRow
	for rows.Next() {
		var r catalogRow
		if err := rows.Scan(&r.Entity, &r.Name, &r.Kind, &r.Nullable, &r.Position); err != nil {
			return err
		}
		catalog = append(catalog, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	schemas, err := unmarshalSchemas(catalog)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.schemas = schemas
	s.mu.Unlock()
	return nil
}
