package queryir

import (
	"fmt"

	"github.com/roach88/querykit/internal/ir"
)

// ValidationResult contains the portability analysis of a fetch.
//
// A portable fetch behaves the same on every bundled backend. Non-portable
// fetches still execute; the warnings describe where results may differ
// or where the query is probably not what the caller meant.
type ValidationResult struct {
	// IsPortable is true when Warnings is empty.
	IsPortable bool

	// Warnings lists the findings in traversal order.
	Warnings []string
}

// Validate checks a fetch for constructs whose meaning depends on the
// backend or that can never match.
//
// Rules:
//  1. Equality against NULL: SQL backends never match "= NULL"; use IsNull.
//  2. Between with min > max never matches.
//  3. Empty Or never matches.
//  4. Matches: PostgreSQL evaluates POSIX regular expressions, not RE2.
//  5. DiacriticInsensitive needs the unaccent extension on PostgreSQL.
//  6. Sorting by a nested path compares extracted JSON values.
//
// Validate is a pure function with no side effects.
func Validate(f Fetch) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validatePredicate(f.Predicate)
	for _, s := range f.Sort {
		if s.Field.IsNested() {
			v.addWarning("Sort on nested path '%s' - ordering of extracted JSON values is backend-specific", s.Field)
		}
	}
	if !f.Range.Valid() {
		v.addWarning("Negative range %s - backends reject it", f.Range)
	}

	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// match all
	case Comparison:
		v.validateComparison(pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		if len(pred.Predicates) == 0 {
			v.addWarning("Empty OR - never matches")
		}
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Not:
		v.validatePredicate(pred.Predicate)
	default:
		v.addWarning("Unknown predicate type: %T - portability cannot be verified", p)
	}
}

func (v *validator) validateComparison(c Comparison) {
	if c.Field == "" {
		v.addWarning("Comparison with empty field path")
	}

	switch c.Op {
	case OpEqual, OpNotEqual:
		if ir.IsNull(c.Value) {
			v.addWarning("Field '%s' compared to NULL with %s - use IsNull", c.Field, c.Op)
		}
	case OpBetween:
		lo, hi, ok := c.Bounds()
		if !ok {
			v.addWarning("Field '%s' BETWEEN needs a {min, max} pair", c.Field)
			break
		}
		if cmp, comparable := ir.Compare(lo, hi); comparable && cmp > 0 {
			v.addWarning("Field '%s' BETWEEN min > max - never matches", c.Field)
		}
	case OpIn:
		if _, ok := c.Set(); !ok {
			v.addWarning("Field '%s' IN needs an array of candidates", c.Field)
		}
	case OpMatches:
		v.addWarning("Field '%s' MATCHES - regular expression dialects differ between backends", c.Field)
	}

	if c.Options.Has(DiacriticInsensitive) {
		v.addWarning("Field '%s' diacritic-insensitive - PostgreSQL requires the unaccent extension", c.Field)
	}
}
