package queryir

import "fmt"

// Range is an offset+limit result window. The zero value is unbounded:
// offset 0 and no limit. Negative values are carried as given; backends
// reject them when compiling.
type Range struct {
	Offset   int
	Limit    int
	HasLimit bool
}

// Window returns a bounded range.
func Window(offset, limit int) Range {
	return Range{Offset: offset, Limit: limit, HasLimit: true}
}

// FromOffset returns a range that skips offset records and has no limit.
func FromOffset(offset int) Range {
	return Range{Offset: offset}
}

// IsUnbounded reports whether r is the zero window.
func (r Range) IsUnbounded() bool {
	return r.Offset == 0 && !r.HasLimit
}

// Valid reports whether neither offset nor limit is negative.
func (r Range) Valid() bool {
	return r.Offset >= 0 && (!r.HasLimit || r.Limit >= 0)
}

// Slice composes the half-open sub-window [start, end) relative to r.
// The result never extends past r's own limit.
func (r Range) Slice(start, end int) Range {
	out := Range{Offset: r.Offset + start, Limit: end - start, HasLimit: true}
	if r.HasLimit && start >= 0 {
		avail := max(r.Limit-start, 0)
		if out.Limit > avail {
			out.Limit = avail
		}
	}
	return out
}

// First returns r narrowed to at most one record.
func (r Range) First() Range {
	return r.Slice(0, 1)
}

// Bounds applies r to a result of n records and returns the half-open
// index interval to keep. The caller must ensure r is Valid.
func (r Range) Bounds(n int) (lo, hi int) {
	lo = min(r.Offset, n)
	hi = n
	if r.HasLimit {
		hi = min(lo+r.Limit, n)
	}
	return lo, hi
}

func (r Range) String() string {
	switch {
	case r.IsUnbounded():
		return ""
	case !r.HasLimit:
		return fmt.Sprintf("OFFSET %d", r.Offset)
	case r.Offset == 0:
		return fmt.Sprintf("LIMIT %d", r.Limit)
	}
	return fmt.Sprintf("OFFSET %d LIMIT %d", r.Offset, r.Limit)
}
