package store

import (
	"context"
	"fmt"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/querysql"
)

var compiler = querysql.Compiler{Dialect: querysql.SQLite}

// ResolveFieldPath binds path to a declared column. Nested paths must
// start at an array or object column.
func (s *Store) ResolveFieldPath(desc queryir.Descriptor, path queryir.Path) (queryir.FieldRef, error) {
	schema, ok := s.Schema(desc.Entity)
	if !ok {
		return queryir.FieldRef{}, queryset.NewUnknownFieldError(desc.Entity, path)
	}
	return querysql.SchemaResolver(schema)(path)
}

// Compile lowers fetch to SQLite SQL. The result is a *querysql.Query.
func (s *Store) Compile(desc queryir.Descriptor, fetch queryir.Fetch) (queryset.FetchSpec, error) {
	resolve := func(p queryir.Path) (queryir.FieldRef, error) { return s.ResolveFieldPath(desc, p) }
	q, err := compiler.Compile(desc, desc.Entity, fetch, resolve)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Decompose returns the descriptor and fetch a query was compiled from.
func (s *Store) Decompose(spec queryset.FetchSpec) (queryir.Descriptor, queryir.Fetch, error) {
	q, err := query(spec)
	if err != nil {
		return queryir.Descriptor{}, queryir.Fetch{}, err
	}
	return q.Desc, q.Fetch.Clone(), nil
}

func query(spec queryset.FetchSpec) (*querysql.Query, error) {
	q, ok := spec.(*querysql.Query)
	if !ok || q.Dialect != querysql.SQLite {
		return nil, fmt.Errorf("store: foreign fetch spec %T", spec)
	}
	return q, nil
}

// Execute runs the SELECT and decodes the rows in result order.
func (s *Store) Execute(ctx context.Context, spec queryset.FetchSpec) ([]ir.IRObject, error) {
	q, err := query(spec)
	if err != nil {
		return nil, err
	}
	schema, ok := s.Schema(q.Desc.Entity)
	if !ok {
		return nil, fmt.Errorf("store: unknown entity %q", q.Desc.Entity)
	}

	stmt := q.Select(querysql.SQLite.Columns(schema)...)
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", q.Desc.Entity, err)
	}
	defer rows.Close()

	return scanRecords(rows, schema)
}

func (s *Store) ExecuteCount(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	q, err := query(spec)
	if err != nil {
		return 0, err
	}
	stmt := q.Count()
	var n int
	if err := s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Desc.Entity, err)
	}
	return n, nil
}

// ExecuteDelete runs a single DELETE statement, so the removal is atomic.
func (s *Store) ExecuteDelete(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	q, err := query(spec)
	if err != nil {
		return 0, err
	}
	stmt := q.Delete()
	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", q.Desc.Entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", q.Desc.Entity, err)
	}
	return int(n), nil
}

// Identify keys records by their "id" field, falling back to content.
func (s *Store) Identify(record ir.IRObject) string {
	return ir.RecordKey(record)
}
