package queryir

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/querykit/internal/ir"
)

var operatorFormat = map[Operator]string{
	OpEqual:              "==",
	OpNotEqual:           "!=",
	OpLike:               "LIKE",
	OpMatches:            "MATCHES",
	OpBeginsWith:         "BEGINSWITH",
	OpEndsWith:           "ENDSWITH",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
	OpBetween:            "BETWEEN",
	OpIn:                 "IN",
	OpContains:           "CONTAINS",
}

// Format renders p as a human-readable predicate string, e.g.
//
//	age > 1 AND NOT name ==[c] "bob"
//
// A nil predicate renders as TRUEPREDICATE.
func Format(p Predicate) string {
	var b strings.Builder
	formatPredicate(&b, p, false)
	return b.String()
}

func formatPredicate(b *strings.Builder, p Predicate, nested bool) {
	switch pred := p.(type) {
	case nil:
		b.WriteString("TRUEPREDICATE")
	case Comparison:
		formatComparison(b, pred)
	case And:
		formatCompound(b, pred.Predicates, " AND ", "TRUEPREDICATE", nested)
	case Or:
		formatCompound(b, pred.Predicates, " OR ", "FALSEPREDICATE", nested)
	case Not:
		b.WriteString("NOT ")
		formatPredicate(b, pred.Predicate, true)
	}
}

func formatCompound(b *strings.Builder, preds []Predicate, sep, empty string, nested bool) {
	if len(preds) == 0 {
		b.WriteString(empty)
		return
	}
	if nested {
		b.WriteByte('(')
	}
	for i, sub := range preds {
		if i > 0 {
			b.WriteString(sep)
		}
		formatPredicate(b, sub, true)
	}
	if nested {
		b.WriteByte(')')
	}
}

func formatComparison(b *strings.Builder, c Comparison) {
	b.WriteString(string(c.Field))
	switch c.Op {
	case OpIsNull:
		b.WriteString(" == nil")
		return
	case OpIsTrue:
		b.WriteString(" == true")
		return
	case OpIsFalse:
		b.WriteString(" == false")
		return
	}

	b.WriteByte(' ')
	b.WriteString(operatorFormat[c.Op])
	if c.Options != 0 {
		b.WriteString("[" + c.Options.String() + "]")
	}
	b.WriteByte(' ')
	formatValue(b, c.Value)
}

func formatValue(b *strings.Builder, v ir.IRValue) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		b.WriteString("nil")
	case ir.IRString:
		b.WriteString(strconv.Quote(string(val)))
	case ir.IRInt:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case ir.IRFloat:
		b.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case ir.IRBool:
		b.WriteString(strconv.FormatBool(bool(val)))
	case ir.IRTime:
		b.WriteString(`CAST("` + val.Time().Format(time.RFC3339Nano) + `")`)
	case ir.IRKeyPath:
		b.WriteString(string(val))
	case ir.IRArray:
		b.WriteByte('{')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			formatValue(b, item)
		}
		b.WriteByte('}')
	case ir.IRObject:
		b.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k) + ": ")
			formatValue(b, val[k])
		}
		b.WriteByte('}')
	}
}

// FormatSort renders sort directives as "a ASC, b DESC".
func FormatSort(sort []SortDirective) string {
	parts := make([]string, len(sort))
	for i, s := range sort {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

// String renders the fetch as a single line:
//
//	Person WHERE age > 1 ORDER BY age DESC OFFSET 1 LIMIT 2
func (f Fetch) String() string {
	var b strings.Builder
	b.WriteString(f.Entity)
	if f.Predicate != nil {
		b.WriteString(" WHERE ")
		b.WriteString(Format(f.Predicate))
	}
	if len(f.Sort) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(FormatSort(f.Sort))
	}
	if r := f.Range.String(); r != "" {
		b.WriteByte(' ')
		b.WriteString(r)
	}
	return b.String()
}
