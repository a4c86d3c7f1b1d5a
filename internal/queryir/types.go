package queryir

import (
	"slices"
	"strings"

	"github.com/roach88/querykit/internal/ir"
)

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Comparison: field <op> value
//   - And: all predicates must be true
//   - Or: at least one predicate must be true
//   - Not: the inner predicate must be false
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Path is a dot-separated field path such as "owner.address.city".
type Path string

// Segments splits the path on ".". An empty path has no segments.
func (p Path) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), ".")
}

// Root returns the first segment of the path.
func (p Path) Root() string {
	root, _, _ := strings.Cut(string(p), ".")
	return root
}

// Nested returns the segments after the root.
func (p Path) Nested() []string {
	_, rest, ok := strings.Cut(string(p), ".")
	if !ok {
		return nil
	}
	return strings.Split(rest, ".")
}

// IsNested reports whether the path has more than one segment.
func (p Path) IsNested() bool {
	return strings.Contains(string(p), ".")
}

func (p Path) String() string { return string(p) }

// Operator identifies the comparison a Comparison performs.
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpLike
	OpMatches
	OpBeginsWith
	OpEndsWith
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpBetween
	OpIn
	OpContains
	OpIsNull
	OpIsTrue
	OpIsFalse
)

var operatorNames = [...]string{
	OpEqual:              "eq",
	OpNotEqual:           "ne",
	OpLike:               "like",
	OpMatches:            "matches",
	OpBeginsWith:         "begins_with",
	OpEndsWith:           "ends_with",
	OpGreaterThan:        "gt",
	OpGreaterThanOrEqual: "gte",
	OpLessThan:           "lt",
	OpLessThanOrEqual:    "lte",
	OpBetween:            "between",
	OpIn:                 "in",
	OpContains:           "contains",
	OpIsNull:             "is_null",
	OpIsTrue:             "is_true",
	OpIsFalse:            "is_false",
}

var operatorSymbols = map[string]Operator{
	"==": OpEqual,
	"=":  OpEqual,
	"!=": OpNotEqual,
	"<>": OpNotEqual,
	">":  OpGreaterThan,
	">=": OpGreaterThanOrEqual,
	"<":  OpLessThan,
	"<=": OpLessThanOrEqual,
}

// String returns the stable operator name used in query documents and
// canonical encodings.
func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return "unknown"
	}
	return operatorNames[o]
}

// TakesValue reports whether the operator compares against a value.
// IsNull, IsTrue and IsFalse do not.
func (o Operator) TakesValue() bool {
	switch o {
	case OpIsNull, OpIsTrue, OpIsFalse:
		return false
	}
	return true
}

// IsPattern reports whether the operator is a string pattern match.
func (o Operator) IsPattern() bool {
	switch o {
	case OpLike, OpMatches, OpBeginsWith, OpEndsWith, OpContains:
		return true
	}
	return false
}

// ParseOperator accepts an operator name ("gte") or symbol (">=").
func ParseOperator(s string) (Operator, bool) {
	if op, ok := operatorSymbols[s]; ok {
		return op, true
	}
	name := strings.ToLower(s)
	for i, n := range operatorNames {
		if n == name {
			return Operator(i), true
		}
	}
	return 0, false
}

// Options modify how string comparisons are evaluated.
type Options uint8

const (
	// CaseInsensitive folds case before comparing.
	CaseInsensitive Options = 1 << iota
	// DiacriticInsensitive strips combining marks before comparing.
	DiacriticInsensitive
)

// Has reports whether every flag in f is set.
func (o Options) Has(f Options) bool { return o&f == f }

// String renders options as a modifier: "", "c", "d" or "cd".
func (o Options) String() string {
	var b strings.Builder
	if o.Has(CaseInsensitive) {
		b.WriteByte('c')
	}
	if o.Has(DiacriticInsensitive) {
		b.WriteByte('d')
	}
	return b.String()
}

// ParseOptions is the inverse of Options.String.
func ParseOptions(s string) (Options, bool) {
	var o Options
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'c':
			o |= CaseInsensitive
		case 'd':
			o |= DiacriticInsensitive
		default:
			return 0, false
		}
	}
	return o, true
}

// Comparison compares one field against a value.
//
// Value shapes by operator:
//   - OpBetween: a two-element ir.IRArray {min, max}
//   - OpIn: an ir.IRArray of candidates
//   - OpIsNull, OpIsTrue, OpIsFalse: ignored (nil)
//   - everything else: a scalar, or ir.IRKeyPath for field-to-field comparison
type Comparison struct {
	Field   Path
	Op      Operator
	Value   ir.IRValue
	Options Options
}

func (Comparison) predicateNode() {}

// Bounds returns the {min, max} pair of a Between comparison.
func (c Comparison) Bounds() (lo, hi ir.IRValue, ok bool) {
	arr, isArr := c.Value.(ir.IRArray)
	if c.Op != OpBetween || !isArr || len(arr) != 2 {
		return nil, nil, false
	}
	return arr[0], arr[1], true
}

// Set returns the candidates of an In comparison.
func (c Comparison) Set() (ir.IRArray, bool) {
	arr, ok := c.Value.(ir.IRArray)
	if c.Op != OpIn || !ok {
		return nil, false
	}
	return arr, true
}

// And represents a conjunction of predicates (all must be true).
// An empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction of predicates. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates its inner predicate. Not{nil} matches nothing.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// AllOf conjoins preds. Nil entries are dropped; a single remaining predicate
// is returned unwrapped and no predicates yields nil (match all).
func AllOf(preds ...Predicate) Predicate {
	kept := compact(preds)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}

// AnyOf disjoins preds with the same folding rules as AllOf.
func AnyOf(preds ...Predicate) Predicate {
	kept := compact(preds)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Or{Predicates: kept}
}

// Negate wraps p in Not.
func Negate(p Predicate) Predicate {
	return Not{Predicate: p}
}

func compact(preds []Predicate) []Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// SortDirective orders results by one field.
type SortDirective struct {
	Field     Path
	Direction Direction
}

// Reversed returns the directive with its direction flipped.
func (s SortDirective) Reversed() SortDirective {
	if s.Direction == Descending {
		s.Direction = Ascending
	} else {
		s.Direction = Descending
	}
	return s
}

func (s SortDirective) String() string {
	return string(s.Field) + " " + s.Direction.String()
}

// ReverseAll flips every directive, keeping their order.
func ReverseAll(sort []SortDirective) []SortDirective {
	if len(sort) == 0 {
		return nil
	}
	out := make([]SortDirective, len(sort))
	for i, s := range sort {
		out[i] = s.Reversed()
	}
	return out
}

// Descriptor names the record type a query runs against.
type Descriptor struct {
	Entity string
}

func (d Descriptor) String() string { return d.Entity }

// FieldRef is a handle for reading one field of a record.
//
// Attributes produce unresolved refs (only Path set). A backend resolves a
// ref against a Descriptor, filling in the storage column and any nested
// segments addressed inside that column. JSON marks columns holding
// encoded arrays or objects.
type FieldRef struct {
	Path   Path
	Column string
	Nested []string
	JSON   bool
}

// Resolved reports whether a backend has bound the ref to a column.
func (f FieldRef) Resolved() bool { return f.Column != "" }

// Equal compares two refs field by field.
func (f FieldRef) Equal(o FieldRef) bool {
	return f.Path == o.Path && f.Column == o.Column && f.JSON == o.JSON && slices.Equal(f.Nested, o.Nested)
}

// Fetch is the backend-neutral description of one query.
type Fetch struct {
	Entity    string
	Predicate Predicate
	Sort      []SortDirective
	Range     Range
	// TieBreak orders records whose sort keys are all equal by insertion.
	// Descending lists the most recently inserted first.
	TieBreak Direction
}

// Clone returns a copy whose Sort slice does not alias f's.
// Predicate trees are never mutated after construction and are shared.
func (f Fetch) Clone() Fetch {
	f.Sort = slices.Clone(f.Sort)
	return f
}

// Equal reports structural equality of two fetches.
func (f Fetch) Equal(o Fetch) bool {
	return f.Entity == o.Entity &&
		PredicatesEqual(f.Predicate, o.Predicate) &&
		slices.Equal(f.Sort, o.Sort) &&
		f.Range == o.Range &&
		f.TieBreak == o.TieBreak
}

// Fields returns every field path p references, including ir.IRKeyPath
// values, in first-seen order without duplicates.
func Fields(p Predicate) []Path {
	var out []Path
	seen := map[Path]bool{}
	add := func(path Path) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	Walk(p, func(c Comparison) {
		add(c.Field)
		if kp, ok := c.Value.(ir.IRKeyPath); ok {
			add(Path(kp))
		}
	})
	return out
}

// Walk calls fn for every Comparison in p, depth first, left to right.
func Walk(p Predicate, fn func(Comparison)) {
	switch pred := p.(type) {
	case Comparison:
		fn(pred)
	case And:
		for _, sub := range pred.Predicates {
			Walk(sub, fn)
		}
	case Or:
		for _, sub := range pred.Predicates {
			Walk(sub, fn)
		}
	case Not:
		Walk(pred.Predicate, fn)
	}
}
