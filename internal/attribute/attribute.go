// Package attribute builds comparison predicates and sort directives for a
// named record field.
//
//	age := attribute.New("age")
//	qs = qs.Filter(age.GreaterThan(ir.IRInt(1))).OrderBy(age.Descending())
//
// Every method is pure. Nothing here touches a backend.
package attribute

import (
	"errors"
	"strings"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
)

// ErrEmptyPath is returned by Join when given no attributes.
var ErrEmptyPath = errors.New("attribute: path needs at least one segment")

// Attribute is an immutable handle on a dot-separated field path.
// Two attributes with the same path are interchangeable.
type Attribute struct {
	path queryir.Path
}

// New returns an attribute for a single field name. The name may itself
// contain dots, in which case it addresses a nested field.
func New(name string) Attribute {
	return Attribute{path: queryir.Path(name)}
}

// Of joins path segments with ".".
func Of(segments ...string) (Attribute, error) {
	if len(segments) == 0 {
		return Attribute{}, ErrEmptyPath
	}
	return New(strings.Join(segments, ".")), nil
}

// Join builds an attribute whose path is the paths of parts joined by ".",
// in order.
func Join(parts []Attribute) (Attribute, error) {
	if len(parts) == 0 {
		return Attribute{}, ErrEmptyPath
	}
	segments := make([]string, len(parts))
	for i, p := range parts {
		segments[i] = string(p.path)
	}
	return Of(segments...)
}

// Child returns the attribute for a field nested under a.
func (a Attribute) Child(name string) Attribute {
	return New(string(a.path) + "." + name)
}

// Path returns the full dotted path.
func (a Attribute) Path() queryir.Path { return a.path }

// Name returns the last path segment.
func (a Attribute) Name() string {
	s := string(a.path)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Equal reports structural path equality.
func (a Attribute) Equal(other Attribute) bool { return a.path == other.path }

func (a Attribute) String() string { return string(a.path) }

// FieldRef returns an unresolved handle for reading this field. Backends
// bind it to storage with ResolveFieldPath.
func (a Attribute) FieldRef() queryir.FieldRef {
	return queryir.FieldRef{Path: a.path}
}

// Ref returns the attribute as a comparison value, for comparing one field
// against another.
func (a Attribute) Ref() ir.IRKeyPath { return ir.IRKeyPath(a.path) }

func (a Attribute) compare(op queryir.Operator, v ir.IRValue, opts []queryir.Options) queryir.Comparison {
	c := queryir.Comparison{Field: a.path, Op: op, Value: v}
	for _, o := range opts {
		c.Options |= o
	}
	return c
}
