// Package eval evaluates queryir predicates and sort directives against
// in-memory records.
//
// Evaluation follows SQL three-valued logic so that an in-memory backend
// selects the same records as the SQL backends: a comparison involving a
// missing or null operand is unknown, NOT unknown is unknown, and only
// records for which the whole predicate is true match. IsNull, IsTrue and
// IsFalse, and == / != against a null literal, are never unknown.
package eval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
)

// Truth is a three-valued logic result.
type Truth int

const (
	False Truth = iota
	Unknown
	True
)

func truth(b bool) Truth {
	if b {
		return True
	}
	return False
}

func (t Truth) not() Truth {
	switch t {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

// Program is a compiled predicate. Regular expressions are compiled once.
// A Program is immutable and safe for concurrent use.
type Program struct {
	root node
}

type node interface {
	eval(rec ir.IRObject) Truth
}

// Compile prepares p for repeated evaluation. A nil predicate matches
// every record.
func Compile(p queryir.Predicate) (*Program, error) {
	root, err := compileNode(p)
	if err != nil {
		return nil, err
	}
	return &Program{root: root}, nil
}

// Match reports whether rec satisfies the predicate.
func (p *Program) Match(rec ir.IRObject) bool {
	return p.Eval(rec) == True
}

// Eval returns the three-valued result for rec.
func (p *Program) Eval(rec ir.IRObject) Truth {
	if p.root == nil {
		return True
	}
	return p.root.eval(rec)
}

// Match compiles and evaluates p once. Prefer Compile when evaluating
// many records.
func Match(p queryir.Predicate, rec ir.IRObject) (bool, error) {
	prog, err := Compile(p)
	if err != nil {
		return false, err
	}
	return prog.Match(rec), nil
}

type andNode []node

func (n andNode) eval(rec ir.IRObject) Truth {
	out := True
	for _, sub := range n {
		switch sub.eval(rec) {
		case False:
			return False
		case Unknown:
			out = Unknown
		}
	}
	return out
}

type orNode []node

func (n orNode) eval(rec ir.IRObject) Truth {
	out := False
	for _, sub := range n {
		switch sub.eval(rec) {
		case True:
			return True
		case Unknown:
			out = Unknown
		}
	}
	return out
}

type notNode struct{ inner node }

func (n notNode) eval(rec ir.IRObject) Truth {
	if n.inner == nil {
		return False
	}
	return n.inner.eval(rec).not()
}

func compileNode(p queryir.Predicate) (node, error) {
	switch pred := p.(type) {
	case nil:
		return nil, nil
	case queryir.Comparison:
		return compileComparison(pred)
	case queryir.And:
		subs, err := compileList(pred.Predicates)
		if err != nil {
			return nil, err
		}
		return andNode(subs), nil
	case queryir.Or:
		subs, err := compileList(pred.Predicates)
		if err != nil {
			return nil, err
		}
		return orNode(subs), nil
	case queryir.Not:
		inner, err := compileNode(pred.Predicate)
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return nil, fmt.Errorf("unsupported predicate type: %T", p)
}

func compileList(preds []queryir.Predicate) ([]node, error) {
	out := make([]node, 0, len(preds))
	for _, p := range preds {
		n, err := compileNode(p)
		if err != nil {
			return nil, err
		}
		if n == nil {
			n = constNode(True)
		}
		out = append(out, n)
	}
	return out, nil
}

type constNode Truth

func (n constNode) eval(ir.IRObject) Truth { return Truth(n) }

// Lookup reads path from rec. Missing fields read as null.
func Lookup(rec ir.IRObject, path queryir.Path) ir.IRValue {
	v, ok := rec.Lookup(string(path))
	if !ok || v == nil {
		return ir.IRNull{}
	}
	return v
}

type cmpNode struct {
	c  queryir.Comparison
	re *regexp.Regexp
}

func compileComparison(c queryir.Comparison) (node, error) {
	n := &cmpNode{c: c}
	switch c.Op {
	case queryir.OpLike, queryir.OpMatches:
		s, ok := c.Value.(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("field %s: %s needs a string pattern, got %T", c.Field, c.Op, c.Value)
		}
		var expr string
		if c.Op == queryir.OpLike {
			expr = likeToRegexp(Fold(string(s), c.Options))
		} else {
			pattern := string(s)
			if c.Options.Has(queryir.DiacriticInsensitive) {
				pattern = Fold(pattern, queryir.DiacriticInsensitive)
			}
			expr = "^(?:" + pattern + ")$"
			if c.Options.Has(queryir.CaseInsensitive) {
				expr = "(?i)" + expr
			}
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.Field, err)
		}
		n.re = re
	case queryir.OpBetween:
		if _, _, ok := c.Bounds(); !ok {
			return nil, fmt.Errorf("field %s: between needs a {min, max} pair", c.Field)
		}
	case queryir.OpIn:
		if _, ok := c.Set(); !ok {
			return nil, fmt.Errorf("field %s: in needs an array of candidates", c.Field)
		}
	case queryir.OpEqual, queryir.OpNotEqual, queryir.OpGreaterThan, queryir.OpGreaterThanOrEqual,
		queryir.OpLessThan, queryir.OpLessThanOrEqual, queryir.OpBeginsWith, queryir.OpEndsWith,
		queryir.OpContains, queryir.OpIsNull, queryir.OpIsTrue, queryir.OpIsFalse:
	default:
		return nil, fmt.Errorf("field %s: unsupported operator %s", c.Field, c.Op)
	}
	return n, nil
}

// operand resolves a comparison value, following key paths into rec.
func operand(rec ir.IRObject, v ir.IRValue) ir.IRValue {
	if kp, ok := v.(ir.IRKeyPath); ok {
		return Lookup(rec, queryir.Path(kp))
	}
	if v == nil {
		return ir.IRNull{}
	}
	return v
}

func (n *cmpNode) eval(rec ir.IRObject) Truth {
	c := n.c
	field := Lookup(rec, c.Field)

	switch c.Op {
	case queryir.OpIsNull:
		return truth(ir.IsNull(field))
	case queryir.OpIsTrue:
		return truth(isTruthy(field, true))
	case queryir.OpIsFalse:
		return truth(isTruthy(field, false))
	}

	value := operand(rec, c.Value)

	// "x == nil" and "x != nil" test presence rather than compare.
	if _, literalNull := c.Value.(ir.IRNull); literalNull || c.Value == nil {
		switch c.Op {
		case queryir.OpEqual:
			return truth(ir.IsNull(field))
		case queryir.OpNotEqual:
			return truth(!ir.IsNull(field))
		}
	}

	if ir.IsNull(field) {
		return Unknown
	}

	switch c.Op {
	case queryir.OpEqual:
		return n.equal(field, value)
	case queryir.OpNotEqual:
		return n.equal(field, value).not()
	case queryir.OpGreaterThan, queryir.OpGreaterThanOrEqual, queryir.OpLessThan, queryir.OpLessThanOrEqual:
		return n.order(field, value)
	case queryir.OpBetween:
		lo, hi, _ := c.Bounds()
		lo, hi = operand(rec, lo), operand(rec, hi)
		if ir.IsNull(lo) || ir.IsNull(hi) {
			return Unknown
		}
		a, okA := n.cmp(field, lo)
		b, okB := n.cmp(field, hi)
		return truth(okA && okB && a >= 0 && b <= 0)
	case queryir.OpIn:
		set, _ := c.Set()
		out := False
		for _, cand := range set {
			switch n.equal(field, operand(rec, cand)) {
			case True:
				return True
			case Unknown:
				out = Unknown
			}
		}
		return out
	case queryir.OpLike, queryir.OpMatches:
		s, ok := field.(ir.IRString)
		if !ok {
			return False
		}
		subject := string(s)
		if c.Op == queryir.OpLike {
			subject = Fold(subject, c.Options)
		} else if c.Options.Has(queryir.DiacriticInsensitive) {
			subject = Fold(subject, queryir.DiacriticInsensitive)
		}
		return truth(n.re.MatchString(subject))
	case queryir.OpBeginsWith, queryir.OpEndsWith:
		s, okS := field.(ir.IRString)
		p, okP := value.(ir.IRString)
		if ir.IsNull(value) {
			return Unknown
		}
		if !okS || !okP {
			return False
		}
		subject, pattern := Fold(string(s), c.Options), Fold(string(p), c.Options)
		if c.Op == queryir.OpBeginsWith {
			return truth(strings.HasPrefix(subject, pattern))
		}
		return truth(strings.HasSuffix(subject, pattern))
	case queryir.OpContains:
		return n.contains(field, value)
	}
	return False
}

func (n *cmpNode) equal(field, value ir.IRValue) Truth {
	if ir.IsNull(value) {
		return Unknown
	}
	fs, okF := field.(ir.IRString)
	vs, okV := value.(ir.IRString)
	if okF && okV {
		return truth(Fold(string(fs), n.c.Options) == Fold(string(vs), n.c.Options))
	}
	return truth(ir.Equal(field, value))
}

func (n *cmpNode) cmp(a, b ir.IRValue) (int, bool) {
	as, okA := a.(ir.IRString)
	bs, okB := b.(ir.IRString)
	if okA && okB && n.c.Options != 0 {
		return strings.Compare(Fold(string(as), n.c.Options), Fold(string(bs), n.c.Options)), true
	}
	return ir.Compare(a, b)
}

func (n *cmpNode) order(field, value ir.IRValue) Truth {
	if ir.IsNull(value) {
		return Unknown
	}
	c, ok := n.cmp(field, value)
	if !ok {
		return False
	}
	switch n.c.Op {
	case queryir.OpGreaterThan:
		return truth(c > 0)
	case queryir.OpGreaterThanOrEqual:
		return truth(c >= 0)
	case queryir.OpLessThan:
		return truth(c < 0)
	}
	return truth(c <= 0)
}

func (n *cmpNode) contains(field, value ir.IRValue) Truth {
	if ir.IsNull(value) {
		return Unknown
	}
	switch f := field.(type) {
	case ir.IRString:
		v, ok := value.(ir.IRString)
		if !ok {
			return False
		}
		return truth(strings.Contains(Fold(string(f), n.c.Options), Fold(string(v), n.c.Options)))
	case ir.IRArray:
		for _, item := range f {
			if n.equal(item, value) == True {
				return True
			}
		}
	}
	return False
}

// isTruthy accepts booleans and the integers 0 and 1, which is how SQL
// stores booleans.
func isTruthy(v ir.IRValue, want bool) bool {
	switch val := v.(type) {
	case ir.IRBool:
		return bool(val) == want
	case ir.IRInt:
		if want {
			return val == 1
		}
		return val == 0
	}
	return false
}
