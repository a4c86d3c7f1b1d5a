package queryset

import (
	"context"

	"github.com/roach88/querykit/internal/queryir"
)

// FetchSpec is a backend-native compiled query. Only the backend that
// produced it knows its shape.
type FetchSpec interface {
	// Explain renders the spec for diagnostics, e.g. SQL text and arguments.
	Explain() string
}

// Backend is the storage collaborator a QuerySet executes against.
//
// Compile and Decompose are pure. The Execute methods block until the
// store responds and honor ctx cancellation as far as the store allows.
// Threading discipline for concurrent calls is the backend's own.
type Backend[T any] interface {
	// Compile lowers a fetch into the backend's native form. Unknown field
	// paths fail with an UNKNOWN_FIELD QueryError and rejected windows with
	// INVALID_RANGE.
	Compile(desc queryir.Descriptor, fetch queryir.Fetch) (FetchSpec, error)

	// Decompose recovers the descriptor and fetch a spec was compiled from.
	Decompose(spec FetchSpec) (queryir.Descriptor, queryir.Fetch, error)

	// Execute returns the records selected by spec, sorted and windowed.
	Execute(ctx context.Context, spec FetchSpec) ([]T, error)

	// ExecuteCount returns how many records spec selects, window included.
	ExecuteCount(ctx context.Context, spec FetchSpec) (int, error)

	// ExecuteDelete removes the records spec selects and returns how many
	// were removed.
	ExecuteDelete(ctx context.Context, spec FetchSpec) (int, error)

	// ResolveFieldPath binds a path to storage.
	ResolveFieldPath(desc queryir.Descriptor, path queryir.Path) (queryir.FieldRef, error)

	// Identify returns a key that is equal for records that are the same
	// record. Used for deduplication.
	Identify(record T) string
}

// ResolveAll resolves every field fetch references: predicate fields,
// key-path values and sort keys. Backends call it from Compile so that
// unknown fields fail before any I/O.
func ResolveAll(resolve func(queryir.Path) (queryir.FieldRef, error), fetch queryir.Fetch) (map[queryir.Path]queryir.FieldRef, error) {
	refs := make(map[queryir.Path]queryir.FieldRef)
	paths := queryir.Fields(fetch.Predicate)
	for _, s := range fetch.Sort {
		paths = append(paths, s.Field)
	}
	for _, p := range paths {
		if _, ok := refs[p]; ok {
			continue
		}
		ref, err := resolve(p)
		if err != nil {
			return nil, err
		}
		refs[p] = ref
	}
	return refs, nil
}
