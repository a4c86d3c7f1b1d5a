package pgstore

import (
	"context"
	"fmt"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/querysql"
)

func (s *Store) ResolveFieldPath(desc queryir.Descriptor, path queryir.Path) (queryir.FieldRef, error) {
	schema, ok := s.catalog.get(desc.Entity)
	if !ok {
		return queryir.FieldRef{}, queryset.NewUnknownFieldError(desc.Entity, path)
	}
	return querysql.SchemaResolver(schema)(path)
}

// Compile lowers fetch to Postgres SQL. Without unaccent, diacritic
// folding is rejected before any SQL is built.
func (s *Store) Compile(desc queryir.Descriptor, fetch queryir.Fetch) (queryset.FetchSpec, error) {
	if !s.unaccent {
		var folded queryir.Path
		queryir.Walk(fetch.Predicate, func(c queryir.Comparison) {
			if folded == "" && c.Options.Has(queryir.DiacriticInsensitive) {
				folded = c.Field
			}
		})
		if folded != "" {
			return nil, queryset.NewUnsupportedError(desc.Entity, folded, "diacritic-insensitive comparison needs the unaccent extension")
		}
	}

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
		return nil, fmt.Errorf("pgstore: foreign fetch spec %T", spec)
	}
	return q, nil
}

func (s *Store) Execute(ctx context.Context, spec queryset.FetchSpec) ([]ir.IRObject, error) {
	q, err := query(spec)
	if err != nil {
		return nil, err
	}
	schema, ok := s.catalog.get(q.Desc.Entity)
	if !ok {
		return nil, fmt.Errorf("pgstore: unknown entity %q", q.Desc.Entity)
	}

	stmt := q.Select(dialect.Columns(schema)...)
	rows, err := s.pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", q.Desc.Entity, err)
	}
	defer rows.Close()

	var out []ir.IRObject
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("execute %s: %w", q.Desc.Entity, err)
		}
		rec, err := dialect.DecodeRow(schema, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", q.Desc.Entity, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execute %s: %w", q.Desc.Entity, err)
	}
	return out, nil
}

func (s *Store) ExecuteCount(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	q, err := query(spec)
	if err != nil {
		return 0, err
	}
	stmt := q.Count()
	var n int64
	if err := s.pool.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Desc.Entity, err)
	}
	return int(n), nil
}

// ExecuteDelete removes rows with one statement; windowed deletes address
// rows by ctid.
func (s *Store) ExecuteDelete(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	q, err := query(spec)
	if err != nil {
		return 0, err
	}
	stmt := q.Delete()
	tag, err := s.pool.Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", q.Desc.Entity, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Identify(record ir.IRObject) string {
	return ir.RecordKey(record)
}
