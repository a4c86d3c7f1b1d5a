// Package queryset provides QuerySet, an immutable description of a
// filtered, sorted and windowed fetch against a Backend.
//
// A QuerySet is built once from a backend and a record descriptor and then
// only copied with modification:
//
//	people := queryset.New(backend, queryir.Descriptor{Entity: "Person"})
//	adults := people.Filter(age.GreaterThanOrEqual(ir.IRInt(18))).OrderBy(age.Descending())
//	rows, err := adults.All(ctx)
//
// Transformations never fail and never touch the backend. Every execution
// call lowers the query set through CompileFetchSpec and surfaces backend
// failures as *QueryError.
//
// QuerySet values hold no backend resources and are safe to share between
// goroutines.
package queryset

import (
	"reflect"
	"slices"

	"github.com/roach88/querykit/internal/queryir"
)

// store is the backend binding shared by every QuerySet derived from the
// same constructor call. It is never modified after construction.
type store[T any] struct {
	backend Backend[T]
	desc    queryir.Descriptor
	opts    options
}

// QuerySet is an immutable query over records of type T.
type QuerySet[T any] struct {
	store     *store[T]
	predicate queryir.Predicate
	sort      []queryir.SortDirective
	rng       queryir.Range
}

// New returns a query set matching every record of desc: no predicate, no
// sort keys, unbounded range.
func New[T any](backend Backend[T], desc queryir.Descriptor, opts ...Option) QuerySet[T] {
	return NewWithState(backend, desc, nil, nil, queryir.Range{}, opts...)
}

// NewWithState returns a query set with explicit state. sort is copied.
func NewWithState[T any](backend Backend[T], desc queryir.Descriptor, predicate queryir.Predicate, sort []queryir.SortDirective, rng queryir.Range, opts ...Option) QuerySet[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return QuerySet[T]{
		store:     &store[T]{backend: backend, desc: desc, opts: o},
		predicate: predicate,
		sort:      slices.Clone(sort),
		rng:       rng,
	}
}

// FromFetchSpec adapts a backend-native spec into a query set.
func FromFetchSpec[T any](backend Backend[T], spec FetchSpec, opts ...Option) (QuerySet[T], error) {
	desc, fetch, err := backend.Decompose(spec)
	if err != nil {
		return QuerySet[T]{}, err
	}
	return NewWithState(backend, desc, fetch.Predicate, fetch.Sort, fetch.Range, opts...), nil
}

func (qs QuerySet[T]) with(predicate queryir.Predicate, sort []queryir.SortDirective, rng queryir.Range) QuerySet[T] {
	return QuerySet[T]{store: qs.store, predicate: predicate, sort: sort, rng: rng}
}

// Filter returns a query set that additionally requires every one of preds.
// The new predicate is AND(old, preds) or just preds when there was none.
// Filter with no predicates returns an equal query set.
func (qs QuerySet[T]) Filter(preds ...queryir.Predicate) QuerySet[T] {
	added := queryir.AllOf(preds...)
	if added == nil {
		return qs.with(qs.predicate, slices.Clone(qs.sort), qs.rng)
	}
	return qs.with(queryir.AllOf(qs.predicate, added), slices.Clone(qs.sort), qs.rng)
}

// Exclude returns a query set that additionally rejects records matching
// all of preds: AND(old, NOT(preds)) or NOT(preds) when there was none.
func (qs QuerySet[T]) Exclude(preds ...queryir.Predicate) QuerySet[T] {
	added := queryir.AllOf(preds...)
	if added == nil {
		return qs.with(qs.predicate, slices.Clone(qs.sort), qs.rng)
	}
	return qs.with(queryir.AllOf(qs.predicate, queryir.Negate(added)), slices.Clone(qs.sort), qs.rng)
}

// OrderBy replaces the sort keys wholesale. Earlier calls do not
// accumulate.
func (qs QuerySet[T]) OrderBy(directives ...queryir.SortDirective) QuerySet[T] {
	var sort []queryir.SortDirective
	if len(directives) > 0 {
		sort = slices.Clone(directives)
	}
	return qs.with(qs.predicate, sort, qs.rng)
}

// Reverse flips the direction of every sort key, keeping their order.
// Without sort keys it returns an equal query set.
func (qs QuerySet[T]) Reverse() QuerySet[T] {
	return qs.with(qs.predicate, queryir.ReverseAll(qs.sort), qs.rng)
}

// Slice narrows the window to [start, end) relative to the current one.
func (qs QuerySet[T]) Slice(start, end int) QuerySet[T] {
	return qs.with(qs.predicate, slices.Clone(qs.sort), qs.rng.Slice(start, end))
}

// Descriptor returns the record type the query set targets.
func (qs QuerySet[T]) Descriptor() queryir.Descriptor { return qs.store.desc }

// Predicate returns the root predicate; nil matches every record.
func (qs QuerySet[T]) Predicate() queryir.Predicate { return qs.predicate }

// SortKeys returns a copy of the sort keys.
func (qs QuerySet[T]) SortKeys() []queryir.SortDirective { return slices.Clone(qs.sort) }

func (qs QuerySet[T]) Range() queryir.Range { return qs.rng }

// Fetch returns the backend-neutral form of the query set.
func (qs QuerySet[T]) Fetch() queryir.Fetch {
	return queryir.Fetch{
		Entity:    qs.store.desc.Entity,
		Predicate: qs.predicate,
		Sort:      slices.Clone(qs.sort),
		Range:     qs.rng,
	}
}

func (qs QuerySet[T]) String() string { return qs.Fetch().String() }

// Fingerprint returns a stable hash of the fetch. Equal query sets on the
// same descriptor share a fingerprint.
func (qs QuerySet[T]) Fingerprint() (string, error) {
	return qs.Fetch().Fingerprint()
}

// Equal reports whether both query sets target the same backend and
// descriptor with structurally equal predicate, sort keys and range.
func (qs QuerySet[T]) Equal(other QuerySet[T]) bool {
	if qs.store == nil || other.store == nil {
		return qs.store == other.store
	}
	sameStore := qs.store == other.store ||
		(sameBackend(qs.store.backend, other.store.backend) && qs.store.desc == other.store.desc)
	return sameStore &&
		queryir.PredicatesEqual(qs.predicate, other.predicate) &&
		slices.Equal(qs.sort, other.sort) &&
		qs.rng == other.rng
}

// sameBackend compares backends by identity. Values of non-comparable
// dynamic types compare unequal unless they share a store.
func sameBackend[T any](a, b Backend[T]) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// ResolveField binds path against the query set's descriptor.
func (qs QuerySet[T]) ResolveField(path queryir.Path) (queryir.FieldRef, error) {
	return qs.store.backend.ResolveFieldPath(qs.store.desc, path)
}

// CompileFetchSpec lowers the query set into the backend's native form.
// Every execution call goes through it.
func (qs QuerySet[T]) CompileFetchSpec() (FetchSpec, error) {
	return qs.compile(qs.Fetch())
}

func (qs QuerySet[T]) compile(f queryir.Fetch) (FetchSpec, error) {
	spec, err := qs.store.backend.Compile(qs.store.desc, f)
	if err != nil {
		return nil, qs.wrap("compile", err)
	}
	return spec, nil
}
