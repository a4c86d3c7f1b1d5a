package attribute

import (
	"iter"
	"slices"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
)

// EqualTo matches records whose field equals v.
func (a Attribute) EqualTo(v ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpEqual, v, opts)
}

// NotEqualTo matches records whose field differs from v.
func (a Attribute) NotEqualTo(v ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpNotEqual, v, opts)
}

// Like matches a wildcard pattern: "*" is any run of characters and "?"
// exactly one.
func (a Attribute) Like(pattern string, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpLike, ir.IRString(pattern), opts)
}

// Matches matches an RE2 regular expression against the whole value.
func (a Attribute) Matches(expr string, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpMatches, ir.IRString(expr), opts)
}

// BeginsWith matches string fields starting with prefix.
func (a Attribute) BeginsWith(prefix string, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpBeginsWith, ir.IRString(prefix), opts)
}

// EndsWith matches string fields ending with suffix.
func (a Attribute) EndsWith(suffix string, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpEndsWith, ir.IRString(suffix), opts)
}

// GreaterThan matches field > v.
func (a Attribute) GreaterThan(v ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpGreaterThan, v, opts)
}

// GreaterThanOrEqual matches field >= v.
func (a Attribute) GreaterThanOrEqual(v ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpGreaterThanOrEqual, v, opts)
}

// LessThan matches field < v.
func (a Attribute) LessThan(v ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpLessThan, v, opts)
}

// LessThanOrEqual matches field <= v.
func (a Attribute) LessThanOrEqual(v ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpLessThanOrEqual, v, opts)
}

// Between matches min <= field <= max. The bounds are not checked; when
// min > max the comparison matches nothing.
func (a Attribute) Between(lo, hi ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpBetween, ir.IRArray{lo, hi}, opts)
}

// In matches records whose field equals any of values. Use InFold to
// compare under case or diacritic options.
func (a Attribute) In(values ...ir.IRValue) queryir.Comparison {
	return a.compare(queryir.OpIn, ir.IRArray(slices.Clone(values)), nil)
}

// InFold is In with comparison options.
func (a Attribute) InFold(values []ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpIn, ir.IRArray(slices.Clone(values)), opts)
}

// InSeq is In over any finite sequence of values.
func (a Attribute) InSeq(values iter.Seq[ir.IRValue], opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpIn, ir.IRArray(slices.Collect(values)), opts)
}

// Contains matches string fields containing v as a substring, and array
// fields holding an element equal to v.
func (a Attribute) Contains(v ir.IRValue, opts ...queryir.Options) queryir.Comparison {
	return a.compare(queryir.OpContains, v, opts)
}

// IsNull matches records whose field is null or missing.
func (a Attribute) IsNull() queryir.Comparison {
	return a.compare(queryir.OpIsNull, nil, nil)
}

// IsTrue matches boolean fields holding true.
func (a Attribute) IsTrue() queryir.Comparison {
	return a.compare(queryir.OpIsTrue, nil, nil)
}

// IsFalse matches boolean fields holding false.
func (a Attribute) IsFalse() queryir.Comparison {
	return a.compare(queryir.OpIsFalse, nil, nil)
}

// Ascending sorts by the field, nulls first.
func (a Attribute) Ascending() queryir.SortDirective {
	return queryir.SortDirective{Field: a.path, Direction: queryir.Ascending}
}

// Descending sorts by the field, nulls last.
func (a Attribute) Descending() queryir.SortDirective {
	return queryir.SortDirective{Field: a.path, Direction: queryir.Descending}
}
