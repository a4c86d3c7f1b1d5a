package queryset

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/querykit/internal/queryir"
)

// wrap passes QueryErrors through and wraps anything else as a backend
// execution failure.
func (qs QuerySet[T]) wrap(op string, err error) error {
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return NewBackendError(qs.store.desc.Entity, op, err)
}

// logStart records the start of an execution call and returns its id.
func (qs QuerySet[T]) logStart(ctx context.Context, op string, f queryir.Fetch) (string, *slog.Logger) {
	log := qs.store.opts.log()
	id := qs.store.opts.ids.Generate()
	if log.Enabled(ctx, slog.LevelDebug) {
		fp, _ := f.Fingerprint()
		log.DebugContext(ctx, "executing query",
			"exec_id", id,
			"op", op,
			"entity", f.Entity,
			"fingerprint", fp,
			"fetch", f.String(),
		)
	}
	return id, log
}

func (qs QuerySet[T]) logFailure(ctx context.Context, log *slog.Logger, id, op string, err error) {
	log.DebugContext(ctx, "query failed",
		"exec_id", id,
		"op", op,
		"entity", qs.store.desc.Entity,
		"error", err,
	)
}

func (qs QuerySet[T]) fetchRecords(ctx context.Context, op string, f queryir.Fetch) ([]T, error) {
	id, log := qs.logStart(ctx, op, f)
	spec, err := qs.compile(f)
	if err != nil {
		qs.logFailure(ctx, log, id, op, err)
		return nil, err
	}
	records, err := qs.store.backend.Execute(ctx, spec)
	if err != nil {
		err = qs.wrap(op, err)
		qs.logFailure(ctx, log, id, op, err)
		return nil, err
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Count returns the number of matching records. With CountMatches (the
// default) the range is ignored; with CountWindow only records inside the
// window are counted.
func (qs QuerySet[T]) Count(ctx context.Context) (int, error) {
	f := qs.Fetch()
	f.Sort = nil
	if qs.store.opts.countPolicy == CountMatches {
		f.Range = queryir.Range{}
	}

	id, log := qs.logStart(ctx, "count", f)
	spec, err := qs.compile(f)
	if err != nil {
		qs.logFailure(ctx, log, id, "count", err)
		return 0, err
	}
	n, err := qs.store.backend.ExecuteCount(ctx, spec)
	if err != nil {
		err = qs.wrap("count", err)
		qs.logFailure(ctx, log, id, "count", err)
		return 0, err
	}
	return n, nil
}

// All materializes every matching record in sort order, window applied.
// A successful fetch with no matches returns an empty, non-nil slice.
func (qs QuerySet[T]) All(ctx context.Context) ([]T, error) {
	return qs.fetchRecords(ctx, "all", qs.Fetch())
}

// Unique returns the matching records with duplicates removed, keeping the
// first occurrence in sort order.
func (qs QuerySet[T]) Unique(ctx context.Context) ([]T, error) {
	records, err := qs.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		key := qs.store.backend.Identify(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// UniqueSet returns the matching records keyed by identity. Iteration
// order is unspecified.
func (qs QuerySet[T]) UniqueSet(ctx context.Context) (map[string]T, error) {
	records, err := qs.All(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]T, len(records))
	for _, r := range records {
		key := qs.store.backend.Identify(r)
		if _, dup := set[key]; !dup {
			set[key] = r
		}
	}
	return set, nil
}

// Enumerate calls visit for each matching record in sort order with its
// index. visit returns false to stop. The result is true only if every
// record was visited and no error occurred.
func (qs QuerySet[T]) Enumerate(ctx context.Context, visit func(record T, index int) bool) (bool, error) {
	records, err := qs.All(ctx)
	if err != nil {
		return false, err
	}
	for i, r := range records {
		if !visit(r, i) {
			return false, nil
		}
	}
	return true, nil
}

// ForEach calls fn for each matching record in sort order.
func (qs QuerySet[T]) ForEach(ctx context.Context, fn func(record T)) error {
	_, err := qs.Enumerate(ctx, func(r T, _ int) bool {
		fn(r)
		return true
	})
	return err
}

// Delete removes every matching record and returns how many were removed.
// No transaction is added; atomicity is whatever the backend provides.
func (qs QuerySet[T]) Delete(ctx context.Context) (int, error) {
	f := qs.Fetch()
	id, log := qs.logStart(ctx, "delete", f)
	spec, err := qs.compile(f)
	if err != nil {
		qs.logFailure(ctx, log, id, "delete", err)
		return 0, err
	}
	n, err := qs.store.backend.ExecuteDelete(ctx, spec)
	if err != nil {
		err = qs.wrap("delete", err)
		qs.logFailure(ctx, log, id, "delete", err)
		return 0, err
	}
	log.InfoContext(ctx, "records deleted", "exec_id", id, "entity", f.Entity, "count", n)
	return n, nil
}

// One returns the only matching record. Zero matches fail with NO_MATCH and
// more than one with MULTIPLE_MATCHES.
func (qs QuerySet[T]) One(ctx context.Context) (T, error) {
	var zero T
	f := qs.Fetch()
	f.Range = qs.rng.Slice(0, 2)
	records, err := qs.fetchRecords(ctx, "one", f)
	if err != nil {
		return zero, err
	}
	switch len(records) {
	case 0:
		return zero, NewNoMatchError(qs.store.desc.Entity)
	case 1:
		return records[0], nil
	}
	return zero, NewMultipleMatchesError(qs.store.desc.Entity)
}

// First returns the first matching record in sort order. Without sort keys
// which record is first is up to the backend. found is false when nothing
// matches.
func (qs QuerySet[T]) First(ctx context.Context) (record T, found bool, err error) {
	f := qs.Fetch()
	f.Range = qs.rng.First()
	return qs.single(ctx, "first", f)
}

// Last returns the last matching record in sort order. It fails with
// AMBIGUOUS_ORDER when the query set has no sort keys.
func (qs QuerySet[T]) Last(ctx context.Context) (record T, found bool, err error) {
	if len(qs.sort) == 0 {
		var zero T
		return zero, false, NewAmbiguousOrderError(qs.store.desc.Entity)
	}

	if qs.rng.IsUnbounded() {
		f := qs.Fetch()
		f.Sort = queryir.ReverseAll(qs.sort)
		f.TieBreak = queryir.Descending
		f.Range = queryir.Window(0, 1)
		return qs.single(ctx, "last", f)
	}

	// Reversing the sort would move the window; read it and take the tail.
	records, err := qs.fetchRecords(ctx, "last", qs.Fetch())
	if err != nil || len(records) == 0 {
		var zero T
		return zero, false, err
	}
	return records[len(records)-1], true, nil
}

// At returns the record at index within the query set's window.
func (qs QuerySet[T]) At(ctx context.Context, index int) (record T, found bool, err error) {
	if index < 0 {
		var zero T
		return zero, false, NewInvalidRangeError(qs.store.desc.Entity, queryir.Window(index, 1))
	}
	f := qs.Fetch()
	f.Range = qs.rng.Slice(index, index+1)
	return qs.single(ctx, "at", f)
}

// Exists reports whether at least one record matches.
func (qs QuerySet[T]) Exists(ctx context.Context) (bool, error) {
	_, found, err := qs.First(ctx)
	return found, err
}

func (qs QuerySet[T]) single(ctx context.Context, op string, f queryir.Fetch) (T, bool, error) {
	var zero T
	records, err := qs.fetchRecords(ctx, op, f)
	if err != nil || len(records) == 0 {
		return zero, false, err
	}
	return records[0], true, nil
}
