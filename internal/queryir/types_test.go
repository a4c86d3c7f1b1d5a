package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/ir"
)

func TestPredicate_Sealed(t *testing.T) {
	preds := []Predicate{
		Comparison{Field: "age", Op: OpGreaterThan, Value: ir.IRInt(1)},
		And{},
		Or{},
		Not{},
	}

	for _, p := range preds {
		switch p.(type) {
		case Comparison, And, Or, Not:
		default:
			t.Fatalf("unexpected predicate type %T", p)
		}
	}
}

func TestPath(t *testing.T) {
	p := Path("owner.address.city")
	assert.Equal(t, []string{"owner", "address", "city"}, p.Segments())
	assert.Equal(t, "owner", p.Root())
	assert.Equal(t, []string{"address", "city"}, p.Nested())
	assert.True(t, p.IsNested())

	flat := Path("age")
	assert.Equal(t, "age", flat.Root())
	assert.Nil(t, flat.Nested())
	assert.False(t, flat.IsNested())

	assert.Nil(t, Path("").Segments())
}

func TestOperator_RoundTrip(t *testing.T) {
	for op := OpEqual; op <= OpIsFalse; op++ {
		parsed, ok := ParseOperator(op.String())
		require.True(t, ok, op.String())
		assert.Equal(t, op, parsed)
	}

	op, ok := ParseOperator(">=")
	require.True(t, ok)
	assert.Equal(t, OpGreaterThanOrEqual, op)

	op, ok = ParseOperator("BEGINS_WITH")
	require.True(t, ok)
	assert.Equal(t, OpBeginsWith, op)

	_, ok = ParseOperator("approximately")
	assert.False(t, ok)

	assert.Equal(t, "unknown", Operator(99).String())
}

func TestOperator_Classes(t *testing.T) {
	assert.False(t, OpIsNull.TakesValue())
	assert.True(t, OpIn.TakesValue())
	assert.True(t, OpLike.IsPattern())
	assert.False(t, OpGreaterThan.IsPattern())
}

func TestOptions(t *testing.T) {
	both := CaseInsensitive | DiacriticInsensitive
	assert.Equal(t, "cd", both.String())
	assert.Equal(t, "", Options(0).String())
	assert.True(t, both.Has(CaseInsensitive))
	assert.False(t, CaseInsensitive.Has(both))

	parsed, ok := ParseOptions("CD")
	require.True(t, ok)
	assert.Equal(t, both, parsed)

	_, ok = ParseOptions("x")
	assert.False(t, ok)
}

func TestComparison_Shapes(t *testing.T) {
	between := Comparison{Field: "age", Op: OpBetween, Value: ir.IRArray{ir.IRInt(1), ir.IRInt(5)}}
	lo, hi, ok := between.Bounds()
	require.True(t, ok)
	assert.Equal(t, ir.IRInt(1), lo)
	assert.Equal(t, ir.IRInt(5), hi)

	_, _, ok = Comparison{Field: "age", Op: OpBetween, Value: ir.IRInt(1)}.Bounds()
	assert.False(t, ok)

	in := Comparison{Field: "name", Op: OpIn, Value: ir.IRArray{ir.IRString("a")}}
	set, ok := in.Set()
	require.True(t, ok)
	assert.Len(t, set, 1)

	_, ok = between.Set()
	assert.False(t, ok)
}

func TestAllOf_Folding(t *testing.T) {
	a := Comparison{Field: "a", Op: OpIsTrue}
	b := Comparison{Field: "b", Op: OpIsTrue}

	assert.Nil(t, AllOf())
	assert.Nil(t, AllOf(nil, nil))
	assert.Equal(t, a, AllOf(a))
	assert.Equal(t, a, AllOf(nil, a))
	assert.Equal(t, And{Predicates: []Predicate{a, b}}, AllOf(a, nil, b))

	assert.Nil(t, AnyOf())
	assert.Equal(t, b, AnyOf(b))
	assert.Equal(t, Or{Predicates: []Predicate{a, b}}, AnyOf(a, b))

	assert.Equal(t, Not{Predicate: a}, Negate(a))
}

func TestAllOf_DoesNotAliasInput(t *testing.T) {
	a := Comparison{Field: "a", Op: OpIsTrue}
	b := Comparison{Field: "b", Op: OpIsTrue}
	in := []Predicate{a, b}

	and := AllOf(in...).(And)
	in[0] = b

	assert.Equal(t, a, and.Predicates[0])
}

func TestSortDirective(t *testing.T) {
	asc := SortDirective{Field: "age", Direction: Ascending}
	assert.Equal(t, Descending, asc.Reversed().Direction)
	assert.Equal(t, asc, asc.Reversed().Reversed())
	assert.Equal(t, "age ASC", asc.String())

	sort := []SortDirective{asc, {Field: "name", Direction: Descending}}
	rev := ReverseAll(sort)
	assert.Equal(t, []SortDirective{
		{Field: "age", Direction: Descending},
		{Field: "name", Direction: Ascending},
	}, rev)
	assert.Equal(t, Ascending, sort[0].Direction, "input must not be modified")
	assert.Nil(t, ReverseAll(nil))
}

func TestFieldRef(t *testing.T) {
	a := FieldRef{Path: "owner.name", Column: "owner", Nested: []string{"name"}}
	b := FieldRef{Path: "owner.name", Column: "owner", Nested: []string{"name"}}
	assert.True(t, a.Equal(b))
	assert.True(t, a.Resolved())
	assert.False(t, FieldRef{Path: "x"}.Resolved())
	assert.False(t, a.Equal(FieldRef{Path: "owner.name", Column: "owner"}))
}

func TestFetch_CloneAndEqual(t *testing.T) {
	f := Fetch{
		Entity:    "Person",
		Predicate: Comparison{Field: "age", Op: OpGreaterThan, Value: ir.IRInt(1)},
		Sort:      []SortDirective{{Field: "age", Direction: Descending}},
		Range:     Window(1, 2),
	}

	c := f.Clone()
	assert.True(t, f.Equal(c))

	c.Sort[0] = c.Sort[0].Reversed()
	assert.Equal(t, Descending, f.Sort[0].Direction)
	assert.False(t, f.Equal(c))

	other := f.Clone()
	other.Predicate = Comparison{Field: "age", Op: OpGreaterThan, Value: ir.IRFloat(1)}
	assert.False(t, f.Equal(other), "int and float literals are different trees")

	tie := f.Clone()
	tie.TieBreak = Descending
	assert.False(t, f.Equal(tie))
	assert.True(t, tie.Equal(tie.Clone()))
}

func TestFields(t *testing.T) {
	p := AllOf(
		Comparison{Field: "age", Op: OpGreaterThan, Value: ir.IRKeyPath("min_age")},
		Negate(AnyOf(
			Comparison{Field: "name", Op: OpEqual, Value: ir.IRString("a")},
			Comparison{Field: "age", Op: OpIsNull},
		)),
	)

	assert.Equal(t, []Path{"age", "min_age", "name"}, Fields(p))
	assert.Empty(t, Fields(nil))
}
