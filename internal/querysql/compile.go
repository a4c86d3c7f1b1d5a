package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
)

// Resolver binds a field path to a column of the compiled table.
type Resolver func(queryir.Path) (queryir.FieldRef, error)

// Compiler lowers a queryir.Fetch into parameterized SQL.
//
// CRITICAL: values are always bound as parameters, never interpolated.
// CRITICAL: every statement carries ORDER BY ending in the dialect's row
// key, so ties keep insertion order and windows are deterministic.
type Compiler struct {
	Dialect Dialect
}

// Compile resolves every path fetch references and builds the query parts.
// table is the unquoted table name holding desc's records.
func (c Compiler) Compile(desc queryir.Descriptor, table string, fetch queryir.Fetch, resolve Resolver) (*Query, error) {
	if !fetch.Range.Valid() {
		return nil, queryset.NewInvalidRangeError(desc.Entity, fetch.Range)
	}
	refs, err := queryset.ResolveAll(resolve, fetch)
	if err != nil {
		return nil, err
	}

	b := &builder{dialect: c.Dialect, entity: desc.Entity, refs: refs}
	var where string
	if fetch.Predicate != nil {
		where, err = b.predicate(fetch.Predicate)
		if err != nil {
			return nil, err
		}
	}

	order, err := b.orderBy(fetch.Sort, fetch.TieBreak)
	if err != nil {
		return nil, err
	}

	fetch = fetch.Clone()
	fetch.Entity = desc.Entity
	return &Query{
		Dialect: c.Dialect,
		Desc:    desc,
		Fetch:   fetch,
		Table:   QuoteIdent(table),
		Where:   where,
		Args:    b.args,
		OrderBy: order,
	}, nil
}

type builder struct {
	dialect Dialect
	entity  string
	refs    map[queryir.Path]queryir.FieldRef
	args    []any
}

func (b *builder) unsupported(field queryir.Path, format string, args ...any) error {
	return queryset.NewUnsupportedError(b.entity, field, fmt.Sprintf(format, args...))
}

// bind appends v and returns its placeholder. Placeholders are numbered in
// the order they appear in the SQL text.
func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.placeholder(len(b.args))
}

func (b *builder) predicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case queryir.Comparison:
		return b.comparison(pred)
	case queryir.And:
		return b.compound(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return b.compound(pred.Predicates, " OR ", "1 = 0")
	case queryir.Not:
		if pred.Predicate == nil {
			return "1 = 0", nil
		}
		inner, err := b.predicate(pred.Predicate)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	}
	return "", b.unsupported("", "predicate type %T", p)
}

func (b *builder) compound(preds []queryir.Predicate, sep, empty string) (string, error) {
	if len(preds) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		if p == nil {
			parts = append(parts, "1 = 1")
			continue
		}
		sql, err := b.predicate(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// column renders the SQL expression reading path.
func (b *builder) column(path queryir.Path) (string, queryir.FieldRef, error) {
	ref, ok := b.refs[path]
	if !ok {
		return "", ref, queryset.NewUnknownFieldError(b.entity, path)
	}
	col := QuoteIdent(ref.Column)
	if len(ref.Nested) == 0 {
		return col, ref, nil
	}
	expr, ok := b.dialect.jsonExtract(col, ref.Nested)
	if !ok {
		return "", ref, b.unsupported(path, "nested path %q", path)
	}
	return expr, ref, nil
}

// param converts a literal into a driver argument.
func (b *builder) param(field queryir.Path, v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRTime:
		if b.dialect == Postgres {
			return val.Time(), nil
		}
		return val.Time().UTC().Format(TimeLayout), nil
	}
	return nil, b.unsupported(field, "%s value as SQL parameter", v.Kind())
}

// operand renders a comparison value: a column for key paths, otherwise a
// bound parameter.
func (b *builder) operand(field queryir.Path, v ir.IRValue) (string, error) {
	if kp, ok := v.(ir.IRKeyPath); ok {
		expr, _, err := b.column(queryir.Path(kp))
		return expr, err
	}
	arg, err := b.param(field, v)
	if err != nil {
		return "", err
	}
	return b.bind(arg), nil
}

// fold wraps expr so that it compares under opts.
func (b *builder) fold(field queryir.Path, expr string, opts queryir.Options) (string, error) {
	if opts == 0 {
		return expr, nil
	}
	switch b.dialect {
	case SQLite:
		return fmt.Sprintf("qk_fold(%s, '%s')", expr, opts), nil
	case SQLiteBasic:
		if opts.Has(queryir.DiacriticInsensitive) {
			return "", b.unsupported(field, "diacritic-insensitive comparison")
		}
		return "lower(" + expr + ")", nil
	}
	if opts.Has(queryir.DiacriticInsensitive) {
		expr = "unaccent(" + expr + ")"
	}
	if opts.Has(queryir.CaseInsensitive) {
		expr = "lower(" + expr + ")"
	}
	return expr, nil
}

func textual(v ir.IRValue) bool {
	switch v.(type) {
	case ir.IRString, ir.IRKeyPath:
		return true
	}
	return false
}

// sides renders "column" and "value" for a binary comparison, folding both
// when the options apply to a textual value.
func (b *builder) sides(c queryir.Comparison, v ir.IRValue) (string, string, error) {
	col, _, err := b.column(c.Field)
	if err != nil {
		return "", "", err
	}
	val, err := b.operand(c.Field, v)
	if err != nil {
		return "", "", err
	}
	if c.Options == 0 || !textual(v) {
		return col, val, nil
	}
	if col, err = b.fold(c.Field, col, c.Options); err != nil {
		return "", "", err
	}
	if val, err = b.fold(c.Field, val, c.Options); err != nil {
		return "", "", err
	}
	return col, val, nil
}

var orderOps = map[queryir.Operator]string{
	queryir.OpEqual:              "=",
	queryir.OpNotEqual:           "<>",
	queryir.OpGreaterThan:        ">",
	queryir.OpGreaterThanOrEqual: ">=",
	queryir.OpLessThan:           "<",
	queryir.OpLessThanOrEqual:    "<=",
}

func (b *builder) comparison(c queryir.Comparison) (string, error) {
	col, ref, err := b.column(c.Field)
	if err != nil {
		return "", err
	}

	switch c.Op {
	case queryir.OpIsNull:
		return col + " IS NULL", nil
	case queryir.OpIsTrue, queryir.OpIsFalse:
		return b.truthTest(col, c.Op == queryir.OpIsTrue), nil
	}

	// "x == nil" and "x != nil" test presence rather than compare.
	if c.Value == nil || c.Value.Kind() == ir.KindNull {
		switch c.Op {
		case queryir.OpEqual:
			return col + " IS NULL", nil
		case queryir.OpNotEqual:
			return col + " IS NOT NULL", nil
		}
	}

	switch c.Op {
	case queryir.OpEqual, queryir.OpNotEqual, queryir.OpGreaterThan, queryir.OpGreaterThanOrEqual,
		queryir.OpLessThan, queryir.OpLessThanOrEqual:
		l, r, err := b.sides(c, c.Value)
		if err != nil {
			return "", err
		}
		return l + " " + orderOps[c.Op] + " " + r, nil
	case queryir.OpBetween:
		return b.between(c)
	case queryir.OpIn:
		return b.in(c)
	case queryir.OpLike, queryir.OpBeginsWith, queryir.OpEndsWith:
		return b.pattern(c)
	case queryir.OpMatches:
		return b.matches(c, col)
	case queryir.OpContains:
		if ref.JSON && len(ref.Nested) == 0 {
			return b.element(c, col)
		}
		return b.substring(c)
	}
	return "", b.unsupported(c.Field, "operator %s", c.Op)
}

func (b *builder) truthTest(col string, want bool) string {
	if b.dialect == Postgres {
		if want {
			return col + " IS TRUE"
		}
		return col + " IS FALSE"
	}
	if want {
		return col + " IS 1"
	}
	return col + " IS 0"
}

func (b *builder) between(c queryir.Comparison) (string, error) {
	lo, hi, ok := c.Bounds()
	if !ok {
		return "", b.unsupported(c.Field, "between needs a {min, max} pair")
	}
	col, _, err := b.column(c.Field)
	if err != nil {
		return "", err
	}
	loSQL, err := b.operand(c.Field, lo)
	if err != nil {
		return "", err
	}
	hiSQL, err := b.operand(c.Field, hi)
	if err != nil {
		return "", err
	}
	if c.Options != 0 && textual(lo) && textual(hi) {
		for _, s := range []*string{&col, &loSQL, &hiSQL} {
			if *s, err = b.fold(c.Field, *s, c.Options); err != nil {
				return "", err
			}
		}
	}
	return col + " BETWEEN " + loSQL + " AND " + hiSQL, nil
}

func (b *builder) in(c queryir.Comparison) (string, error) {
	set, ok := c.Set()
	if !ok {
		return "", b.unsupported(c.Field, "in needs an array of candidates")
	}
	if len(set) == 0 {
		return "1 = 0", nil
	}
	col, _, err := b.column(c.Field)
	if err != nil {
		return "", err
	}
	folded := false
	items := make([]string, len(set))
	for i, v := range set {
		if items[i], err = b.operand(c.Field, v); err != nil {
			return "", err
		}
		if c.Options != 0 && textual(v) {
			if items[i], err = b.fold(c.Field, items[i], c.Options); err != nil {
				return "", err
			}
			folded = true
		}
	}
	if folded {
		if col, err = b.fold(c.Field, col, c.Options); err != nil {
			return "", err
		}
	}
	return col + " IN (" + strings.Join(items, ", ") + ")", nil
}

// patternValue returns the literal string of a pattern operator, or
// isNull when the pattern is null.
func (b *builder) patternValue(c queryir.Comparison) (s string, isNull bool, err error) {
	switch v := c.Value.(type) {
	case nil, ir.IRNull:
		return "", true, nil
	case ir.IRString:
		return string(v), false, nil
	}
	return "", false, b.unsupported(c.Field, "%s needs a string literal, got %s", c.Op, c.Value.Kind())
}

// pattern lowers LIKE, BEGINSWITH and ENDSWITH to GLOB on SQLite and to
// LIKE with an escape character on Postgres.
func (b *builder) pattern(c queryir.Comparison) (string, error) {
	s, isNull, err := b.patternValue(c)
	if err != nil {
		return "", err
	}
	col, _, err := b.column(c.Field)
	if err != nil {
		return "", err
	}

	var arg any
	if !isNull {
		if b.dialect == Postgres {
			switch c.Op {
			case queryir.OpLike:
				arg = likeSQL(s)
			case queryir.OpBeginsWith:
				arg = likeEscape(s) + "%"
			default:
				arg = "%" + likeEscape(s)
			}
		} else {
			switch c.Op {
			case queryir.OpLike:
				arg = likeGlob(s)
			case queryir.OpBeginsWith:
				arg = globEscape(s) + "*"
			default:
				arg = "*" + globEscape(s)
			}
		}
	}

	val := b.bind(arg)
	if col, err = b.fold(c.Field, col, c.Options); err != nil {
		return "", err
	}
	if val, err = b.fold(c.Field, val, c.Options); err != nil {
		return "", err
	}
	if b.dialect == Postgres {
		return col + " LIKE " + val + ` ESCAPE '\'`, nil
	}
	return col + " GLOB " + val, nil
}

func (b *builder) matches(c queryir.Comparison, col string) (string, error) {
	s, isNull, err := b.patternValue(c)
	if err != nil {
		return "", err
	}
	if b.dialect == SQLiteBasic {
		return "", b.unsupported(c.Field, "regular expression match")
	}

	var arg any
	if !isNull {
		expr := "^(?:" + s + ")$"
		if c.Options.Has(queryir.CaseInsensitive) && b.dialect != Postgres {
			expr = "(?i)" + expr
		}
		arg = expr
	}
	pattern := b.bind(arg)
	if c.Options.Has(queryir.DiacriticInsensitive) {
		if col, err = b.fold(c.Field, col, queryir.DiacriticInsensitive); err != nil {
			return "", err
		}
		if pattern, err = b.fold(c.Field, pattern, queryir.DiacriticInsensitive); err != nil {
			return "", err
		}
	}

	if b.dialect == Postgres {
		op := " ~ "
		if c.Options.Has(queryir.CaseInsensitive) {
			op = " ~* "
		}
		return col + op + pattern, nil
	}
	return col + " REGEXP " + pattern, nil
}

// substring tests whether a text field contains the value.
func (b *builder) substring(c queryir.Comparison) (string, error) {
	if !textual(c.Value) && !ir.IsNull(c.Value) {
		return "", b.unsupported(c.Field, "contains needs a string, got %s", c.Value.Kind())
	}
	col, val, err := b.sides(c, c.Value)
	if err != nil {
		return "", err
	}
	if b.dialect == Postgres {
		return "strpos(" + col + ", " + val + ") > 0", nil
	}
	return "instr(" + col + ", " + val + ") > 0", nil
}

// element tests whether a JSON array column has an element equal to the
// value. A null column yields NULL, not false.
func (b *builder) element(c queryir.Comparison, col string) (string, error) {
	var item, arg string
	var err error
	if b.dialect == Postgres {
		item = "e.v"
		text, ok := elementText(c.Value)
		if !ok {
			return "", b.unsupported(c.Field, "contains needs a scalar, got %s", c.Value.Kind())
		}
		arg = b.bind(text)
	} else {
		item = "value"
		if arg, err = b.operand(c.Field, c.Value); err != nil {
			return "", err
		}
	}
	if c.Options != 0 && textual(c.Value) {
		if item, err = b.fold(c.Field, item, c.Options); err != nil {
			return "", err
		}
		if arg, err = b.fold(c.Field, arg, c.Options); err != nil {
			return "", err
		}
	}

	var exists string
	if b.dialect == Postgres {
		exists = fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(%s) AS e(v) WHERE %s = %s)", col, item, arg)
	} else {
		exists = fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE %s = %s)", col, item, arg)
	}
	return "CASE WHEN " + col + " IS NULL THEN NULL ELSE " + exists + " END", nil
}

// elementText renders a scalar the way jsonb_array_elements_text does.
func elementText(v ir.IRValue) (any, bool) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, true
	case ir.IRString:
		return string(val), true
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10), true
	case ir.IRFloat:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), true
	case ir.IRBool:
		return strconv.FormatBool(bool(val)), true
	}
	return nil, false
}

// orderBy renders the sort keys followed by the row key tie-breaker.
// Nulls sort first ascending and last descending in every dialect.
func (b *builder) orderBy(sort []queryir.SortDirective, tie queryir.Direction) (string, error) {
	parts := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		col, _, err := b.column(s.Field)
		if err != nil {
			return "", err
		}
		part := col + " " + s.Direction.String()
		if b.dialect == Postgres {
			if s.Direction == queryir.Descending {
				part += " NULLS LAST"
			} else {
				part += " NULLS FIRST"
			}
		}
		parts = append(parts, part)
	}
	parts = append(parts, b.dialect.rowKey()+" "+tie.String())
	return strings.Join(parts, ", "), nil
}

// SchemaResolver resolves paths against the columns of schema. Nested
// paths must start at a JSON column.
func SchemaResolver(schema queryir.Schema) Resolver {
	return func(p queryir.Path) (queryir.FieldRef, error) {
		col, ok := schema.Column(p.Root())
		if !ok || (p.IsNested() && !col.IsJSON()) {
			return queryir.FieldRef{}, queryset.NewUnknownFieldError(schema.Entity, p)
		}
		return queryir.FieldRef{Path: p, Column: col.Name, Nested: p.Nested(), JSON: col.IsJSON()}, nil
	}
}
