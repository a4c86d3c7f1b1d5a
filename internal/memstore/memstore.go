// Package memstore is an in-memory queryset backend.
//
// Records are ir.IRObject values grouped by entity. Queries are evaluated
// with package eval, so results match the SQL backends: the same
// three-valued predicate logic, nulls first in ascending order, and ties
// broken by insertion order.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/querykit/internal/eval"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
)

// Store holds entity tables in memory.
//
// Thread-safety: all methods are safe for concurrent use. Reads share a
// RWMutex read lock; Insert and ExecuteDelete take the write lock.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

type table struct {
	fields  map[string]struct{}
	records []ir.IRObject
}

var _ queryset.Backend[ir.IRObject] = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// CreateEntity declares an entity and its top-level fields. Declaring an
// existing entity adds the fields to it.
func (s *Store) CreateEntity(entity string, fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(entity)
	for _, f := range fields {
		t.fields[f] = struct{}{}
	}
}

// Define declares an entity from its schema.
func (s *Store) Define(schema queryir.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	s.CreateEntity(schema.Entity, schema.Names()...)
	return nil
}

func (s *Store) tableLocked(entity string) *table {
	t, ok := s.tables[entity]
	if !ok {
		t = &table{fields: make(map[string]struct{})}
		s.tables[entity] = t
	}
	return t
}

// Insert appends records to entity, creating it if needed. Every key of
// every record becomes a known field.
func (s *Store) Insert(entity string, records ...ir.IRObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(entity)
	for _, r := range records {
		for k := range r {
			t.fields[k] = struct{}{}
		}
		t.records = append(t.records, maps.Clone(r))
	}
}

// InsertMaps converts native Go maps with ir.FromGo and inserts them.
func (s *Store) InsertMaps(entity string, rows ...map[string]any) error {
	records := make([]ir.IRObject, 0, len(rows))
	for i, row := range rows {
		v, err := ir.FromGo(row)
		if err != nil {
			return fmt.Errorf("memstore: row %d: %w", i, err)
		}
		records = append(records, v.(ir.IRObject))
	}
	s.Insert(entity, records...)
	return nil
}

// Entities returns the entity names in sorted order.
func (s *Store) Entities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.tables))
}

// Plan is the memstore FetchSpec: the fetch plus its compiled predicate.
type Plan struct {
	desc  queryir.Descriptor
	fetch queryir.Fetch
	prog  *eval.Program
}

// Explain renders the plan.
func (p *Plan) Explain() string {
	return "memstore: " + p.fetch.String()
}

// ResolveFieldPath binds path to the top-level field named by its first
// segment. Nested segments are looked up at evaluation time.
func (s *Store) ResolveFieldPath(desc queryir.Descriptor, path queryir.Path) (queryir.FieldRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[desc.Entity]
	if !ok {
		return queryir.FieldRef{}, queryset.NewUnknownFieldError(desc.Entity, path)
	}
	if _, ok := t.fields[path.Root()]; !ok || path == "" {
		return queryir.FieldRef{}, queryset.NewUnknownFieldError(desc.Entity, path)
	}
	return queryir.FieldRef{Path: path, Column: path.Root(), Nested: path.Nested()}, nil
}

// Compile resolves every referenced field and compiles the predicate.
func (s *Store) Compile(desc queryir.Descriptor, fetch queryir.Fetch) (queryset.FetchSpec, error) {
	if !fetch.Range.Valid() {
		return nil, queryset.NewInvalidRangeError(desc.Entity, fetch.Range)
	}
	resolve := func(p queryir.Path) (queryir.FieldRef, error) { return s.ResolveFieldPath(desc, p) }
	if _, err := queryset.ResolveAll(resolve, fetch); err != nil {
		return nil, err
	}
	prog, err := eval.Compile(fetch.Predicate)
	if err != nil {
		return nil, queryset.NewUnsupportedError(desc.Entity, "", err.Error())
	}
	fetch = fetch.Clone()
	fetch.Entity = desc.Entity
	return &Plan{desc: desc, fetch: fetch, prog: prog}, nil
}

// Decompose returns the descriptor and fetch a Plan was compiled from.
func (s *Store) Decompose(spec queryset.FetchSpec) (queryir.Descriptor, queryir.Fetch, error) {
	p, err := plan(spec)
	if err != nil {
		return queryir.Descriptor{}, queryir.Fetch{}, err
	}
	return p.desc, p.fetch.Clone(), nil
}

func plan(spec queryset.FetchSpec) (*Plan, error) {
	p, ok := spec.(*Plan)
	if !ok {
		return nil, fmt.Errorf("memstore: foreign fetch spec %T", spec)
	}
	return p, nil
}

// selectLocked returns the indices of the records p selects, in result
// order. The caller holds s.mu.
func (s *Store) selectLocked(p *Plan) ([]int, *table, error) {
	t, ok := s.tables[p.desc.Entity]
	if !ok {
		return nil, nil, fmt.Errorf("memstore: unknown entity %q", p.desc.Entity)
	}
	idx := make([]int, 0, len(t.records))
	for i, r := range t.records {
		if p.prog.Match(r) {
			idx = append(idx, i)
		}
	}
	if p.fetch.TieBreak == queryir.Descending {
		slices.Reverse(idx)
	}
	if len(p.fetch.Sort) > 0 {
		slices.SortStableFunc(idx, func(a, b int) int {
			return eval.CompareRecords(t.records[a], t.records[b], p.fetch.Sort)
		})
	}
	lo, hi := p.fetch.Range.Bounds(len(idx))
	return idx[lo:hi], t, nil
}

// Execute returns copies of the selected records.
func (s *Store) Execute(ctx context.Context, spec queryset.FetchSpec) ([]ir.IRObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := plan(spec)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, t, err := s.selectLocked(p)
	if err != nil {
		return nil, err
	}
	out := make([]ir.IRObject, len(idx))
	for i, j := range idx {
		out[i] = maps.Clone(t.records[j])
	}
	return out, nil
}

func (s *Store) ExecuteCount(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := plan(spec)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, _, err := s.selectLocked(p)
	return len(idx), err
}

// ExecuteDelete removes the selected records under the write lock, so a
// single call is atomic with respect to other callers.
func (s *Store) ExecuteDelete(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := plan(spec)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, t, err := s.selectLocked(p)
	if err != nil || len(idx) == 0 {
		return 0, err
	}
	doomed := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		doomed[i] = struct{}{}
	}
	kept := t.records[:0]
	for i, r := range t.records {
		if _, gone := doomed[i]; !gone {
			kept = append(kept, r)
		}
	}
	clear(t.records[len(kept):])
	t.records = kept
	return len(idx), nil
}

// Identify keys records by their "id" field, falling back to content.
func (s *Store) Identify(record ir.IRObject) string {
	return ir.RecordKey(record)
}
