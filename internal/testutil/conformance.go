package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/attribute"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
)

// Factory returns a fresh backend loaded with ds. It is called once per
// subtest, so destructive subtests never see each other's changes.
type Factory func(t *testing.T, ds Dataset) queryset.Backend[ir.IRObject]

type conformance struct {
	factory    Factory
	regexp     bool
	diacritics bool
}

// ConformanceOption adjusts the suite to a backend's capabilities.
type ConformanceOption func(*conformance)

// WithoutRegexp expects MATCHES predicates to fail with UNSUPPORTED.
func WithoutRegexp() ConformanceOption {
	return func(c *conformance) { c.regexp = false }
}

// WithoutDiacritics expects diacritic-insensitive predicates to fail with
// UNSUPPORTED.
func WithoutDiacritics() ConformanceOption {
	return func(c *conformance) { c.diacritics = false }
}

var (
	id     = attribute.New("id")
	name   = attribute.New("name")
	age    = attribute.New("age")
	nick   = attribute.New("nick")
	active = attribute.New("active")
	team   = attribute.New("team")
	score  = attribute.New("score")
	tags   = attribute.New("tags")
	owner  = attribute.New("owner").Child("name")
	born   = attribute.New("born")
)

// RunBackendConformance runs the behavior every backend must share with
// the in-memory reference: predicate semantics including nulls, sort order,
// windows, counting, single-record access, deletion and error codes.
func RunBackendConformance(t *testing.T, factory Factory, opts ...ConformanceOption) {
	c := &conformance{factory: factory, regexp: true, diacritics: true}
	for _, opt := range opts {
		opt(c)
	}

	t.Run("Decode", c.testDecode)
	t.Run("FilterAndSort", c.testFilterAndSort)
	t.Run("NullSemantics", c.testNullSemantics)
	t.Run("Operators", c.testOperators)
	t.Run("Regexp", c.testRegexp)
	t.Run("Diacritics", c.testDiacritics)
	t.Run("Windows", c.testWindows)
	t.Run("Count", c.testCount)
	t.Run("SingleRecord", c.testSingleRecord)
	t.Run("Iteration", c.testIteration)
	t.Run("Delete", c.testDelete)
	t.Run("Errors", c.testErrors)
	t.Run("Scenario", c.testScenario)
	t.Run("FetchSpecRoundTrip", c.testFetchSpecRoundTrip)
}

func (c *conformance) people(t *testing.T, opts ...queryset.Option) queryset.QuerySet[ir.IRObject] {
	ds := People()
	return queryset.New(c.factory(t, ds), ds.Descriptor(), opts...)
}

func all(t *testing.T, qs queryset.QuerySet[ir.IRObject]) []string {
	t.Helper()
	records, err := qs.All(context.Background())
	require.NoError(t, err, qs.String())
	return Names(records)
}

func (c *conformance) testDecode(t *testing.T) {
	qs := c.people(t)
	want := People().Records

	for _, w := range want {
		got, err := qs.Filter(id.EqualTo(w["id"])).One(context.Background())
		require.NoError(t, err)
		assert.True(t, ir.Equal(w, got), "record %v decoded as %v", w["name"], got)
	}
}

func (c *conformance) testFilterAndSort(t *testing.T) {
	qs := c.people(t)

	assert.ElementsMatch(t, []string{"ann", "bob", "cara", "dan", "Éva"}, all(t, qs))
	assert.ElementsMatch(t, []string{"ann", "cara"}, all(t, qs.Filter(age.GreaterThan(ir.IRInt(26)))))

	byAge := qs.OrderBy(age.Ascending(), name.Ascending())
	assert.Equal(t, []string{"dan", "bob", "Éva", "ann", "cara"}, all(t, byAge), "nulls sort first ascending")
	assert.Equal(t, []string{"cara", "ann", "bob", "Éva", "dan"}, all(t, qs.OrderBy(age.Descending(), name.Ascending())), "nulls sort last descending")
	assert.Equal(t, []string{"cara", "ann", "Éva", "bob", "dan"}, all(t, byAge.Reverse()))
	assert.Equal(t, all(t, byAge), all(t, byAge.Reverse().Reverse()))

	// OrderBy replaces earlier keys.
	assert.Equal(t, []string{"ann", "bob", "cara", "dan", "Éva"}, all(t, byAge.OrderBy(name.Ascending())))

	filtered := qs.Filter(active.IsTrue()).OrderBy(name.Ascending())
	assert.Equal(t, all(t, filtered), all(t, filtered.Filter(active.IsTrue())))
}

func (c *conformance) testNullSemantics(t *testing.T) {
	qs := c.people(t)

	tests := []struct {
		name string
		qs   queryset.QuerySet[ir.IRObject]
		want []string
	}{
		{"is null", qs.Filter(age.IsNull()), []string{"dan"}},
		{"equal nil", qs.Filter(nick.EqualTo(ir.IRNull{})), []string{"ann", "cara"}},
		{"not equal nil", qs.Filter(nick.NotEqualTo(ir.IRNull{})), []string{"bob", "dan", "Éva"}},
		{"not equal skips nulls", qs.Filter(nick.NotEqualTo(ir.IRString("bobby"))), []string{"dan", "Éva"}},
		{"exclude skips nulls", qs.Exclude(nick.EqualTo(ir.IRString("bobby"))), []string{"dan", "Éva"}},
		{"exclude on nullable number", qs.Exclude(age.GreaterThan(ir.IRInt(30))), []string{"bob", "Éva"}},
		{"or with unknown", qs.Filter(queryir.AnyOf(nick.EqualTo(ir.IRString("bobby")), age.GreaterThan(ir.IRInt(40)))), []string{"bob", "cara"}},
		{"not is null", qs.Exclude(nick.IsNull()), []string{"bob", "dan", "Éva"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, all(t, tt.qs))
		})
	}
}

func (c *conformance) testOperators(t *testing.T) {
	qs := c.people(t)
	ci := queryir.CaseInsensitive

	tests := []struct {
		name string
		pred queryir.Predicate
		want []string
	}{
		{"equal ci", name.EqualTo(ir.IRString("BOB"), ci), []string{"bob"}},
		{"not equal", team.NotEqualTo(ir.IRString("red")), []string{"bob", "dan", "Éva"}},
		{"gte float", score.GreaterThanOrEqual(ir.IRInt(8)), []string{"cara", "Éva"}},
		{"lte", age.LessThanOrEqual(ir.IRInt(25)), []string{"bob", "Éva"}},
		{"like star", name.Like("c*"), []string{"cara"}},
		{"like question mark", name.Like("?an"), []string{"dan"}},
		{"like is anchored", name.Like("an"), []string{}},
		{"begins with", name.BeginsWith("b"), []string{"bob"}},
		{"begins with literal wildcard", name.BeginsWith("*"), []string{}},
		{"ends with ci", name.EndsWith("A", ci), []string{"cara", "Éva"}},
		{"contains substring", name.Contains(ir.IRString("an")), []string{"ann", "dan"}},
		{"contains element", tags.Contains(ir.IRString("sql")), []string{"ann", "Éva"}},
		{"in", name.In(ir.IRString("ann"), ir.IRString("dan"), ir.IRString("zed")), []string{"ann", "dan"}},
		{"in empty", name.In(), []string{}},
		{"in ci", name.InFold([]ir.IRValue{ir.IRString("ANN"), ir.IRString("Dan")}, ci), []string{"ann", "dan"}},
		{"between", age.Between(ir.IRInt(25), ir.IRInt(31)), []string{"ann", "bob", "Éva"}},
		{"is true", active.IsTrue(), []string{"ann", "cara", "Éva"}},
		{"is false", active.IsFalse(), []string{"bob", "dan"}},
		{"equal bool", active.EqualTo(ir.IRBool(false)), []string{"bob", "dan"}},
		{"field to field", score.LessThan(age.Ref()), []string{"ann", "bob", "cara", "Éva"}},
		{"nested", owner.EqualTo(ir.IRString("Ada")), []string{"ann"}},
		{"nested ci", owner.EqualTo(ir.IRString("ada"), ci), []string{"ann", "bob"}},
		{"time", born.LessThan(day(1995, time.January, 1)), []string{"ann", "cara"}},
		{"time between", born.Between(day(1999, time.January, 1), day(1999, time.December, 31)), []string{"bob", "Éva"}},
		{"and", queryir.AllOf(team.In(ir.IRString("blue"), ir.IRString("green")), active.IsFalse()), []string{"bob", "dan"}},
		{"not", queryir.Negate(team.EqualTo(ir.IRString("red"))), []string{"bob", "dan", "Éva"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, all(t, qs.Filter(tt.pred)))
		})
	}
}

func (c *conformance) testRegexp(t *testing.T) {
	qs := c.people(t)
	anchored := qs.Filter(name.Matches("[ab].*"))
	folded := qs.Filter(name.Matches("B.B", queryir.CaseInsensitive))

	if !c.regexp {
		_, err := anchored.All(context.Background())
		assert.True(t, queryset.IsUnsupported(err), "got %v", err)
		return
	}
	assert.ElementsMatch(t, []string{"ann", "bob"}, all(t, anchored))
	assert.ElementsMatch(t, []string{"bob"}, all(t, folded))
	assert.Empty(t, all(t, qs.Filter(name.Matches("nn"))))
}

func (c *conformance) testDiacritics(t *testing.T) {
	qs := c.people(t)
	cd := queryir.CaseInsensitive | queryir.DiacriticInsensitive
	prefix := qs.Filter(name.BeginsWith("e", cd))

	if !c.diacritics {
		_, err := prefix.All(context.Background())
		assert.True(t, queryset.IsUnsupported(err), "got %v", err)
		return
	}
	assert.ElementsMatch(t, []string{"Éva"}, all(t, prefix))
	assert.ElementsMatch(t, []string{"cara", "Éva"}, all(t, qs.Filter(owner.EqualTo(ir.IRString("zoe"), cd))))
	assert.ElementsMatch(t, []string{"Éva"}, all(t, qs.Filter(owner.EqualTo(ir.IRString("Zoe")))), "exact match still distinguishes")

	if !c.regexp {
		return
	}
	assert.ElementsMatch(t, []string{"Éva"}, all(t, qs.Filter(name.Matches("Éva", queryir.DiacriticInsensitive))), "a record matches its own value")
	assert.ElementsMatch(t, []string{"Éva"}, all(t, qs.Filter(name.Matches("év.", cd))))
	assert.ElementsMatch(t, []string{"Éva"}, all(t, qs.Filter(name.Matches("Eva", queryir.DiacriticInsensitive))))
	assert.Empty(t, all(t, qs.Filter(name.Matches("Eva"))))
}

func (c *conformance) testWindows(t *testing.T) {
	ctx := context.Background()
	byName := c.people(t).OrderBy(name.Ascending())

	assert.Equal(t, []string{"bob", "cara"}, all(t, byName.Slice(1, 3)))
	assert.Equal(t, []string{"cara"}, all(t, byName.Slice(1, 3).Slice(1, 5)), "nested slice is clipped")
	assert.Equal(t, []string{"dan", "Éva"}, all(t, byName.Slice(3, 10)))
	assert.Equal(t, []string{}, all(t, byName.Slice(2, 2)))
	assert.Equal(t, []string{}, all(t, byName.Slice(7, 9)))

	_, err := byName.Slice(-1, 2).All(ctx)
	assert.True(t, queryset.IsInvalidRange(err), "got %v", err)

	_, err = byName.Slice(3, 1).All(ctx)
	assert.True(t, queryset.IsInvalidRange(err), "got %v", err)
}

func (c *conformance) testCount(t *testing.T) {
	ctx := context.Background()
	ds := People()
	backend := c.factory(t, ds)
	qs := queryset.New(backend, ds.Descriptor())

	n, err := qs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = qs.Filter(active.IsTrue()).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = qs.OrderBy(name.Ascending()).Slice(0, 2).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "matches policy ignores the window")

	windowed := queryset.New(backend, ds.Descriptor(), queryset.WithCountPolicy(queryset.CountWindow))
	n, err = windowed.OrderBy(name.Ascending()).Slice(0, 2).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = windowed.Slice(4, 10).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func (c *conformance) testSingleRecord(t *testing.T) {
	ctx := context.Background()
	qs := c.people(t)
	byName := qs.OrderBy(name.Ascending())

	rec, err := qs.Filter(name.EqualTo(ir.IRString("bob"))).One(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("bob"), rec["name"])

	_, err = qs.Filter(team.EqualTo(ir.IRString("blue"))).One(ctx)
	assert.True(t, queryset.IsMultipleMatches(err), "got %v", err)

	_, err = qs.Filter(name.EqualTo(ir.IRString("zed"))).One(ctx)
	assert.True(t, queryset.IsNoMatch(err), "got %v", err)

	rec, found, err := qs.OrderBy(age.Descending()).First(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString("cara"), rec["name"])

	_, found, err = qs.Filter(name.EqualTo(ir.IRString("zed"))).First(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	rec, found, err = byName.Last(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString("Éva"), rec["name"])

	rec, found, err = byName.Slice(0, 2).Last(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString("bob"), rec["name"])

	_, _, err = qs.Last(ctx)
	assert.True(t, queryset.IsAmbiguousOrder(err), "got %v", err)

	// bob and Éva share age 25; ties keep insertion order.
	tied := qs.Filter(team.EqualTo(ir.IRString("blue"))).OrderBy(age.Ascending())
	require.Equal(t, []string{"bob", "Éva"}, all(t, tied))
	rec, found, err = tied.Last(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString("Éva"), rec["name"], "last of a tie is the final record of All")
	windowedLast, found, err := tied.Slice(0, 100).Last(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec["name"], windowedLast["name"])
	rec, found, err = tied.Reverse().First(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString("bob"), rec["name"], "reverse flips sort keys only")

	rec, found, err = byName.At(ctx, 2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString("cara"), rec["name"])

	rec, found, err = byName.Slice(1, 3).At(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString("cara"), rec["name"])

	_, found, err = byName.Slice(1, 3).At(ctx, 2)
	require.NoError(t, err)
	assert.False(t, found, "index past the window")

	_, found, err = byName.At(ctx, 9)
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = byName.At(ctx, -1)
	assert.True(t, queryset.IsInvalidRange(err), "got %v", err)

	ok, err := qs.Filter(team.EqualTo(ir.IRString("green"))).Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = qs.Filter(team.EqualTo(ir.IRString("purple"))).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func (c *conformance) testIteration(t *testing.T) {
	ctx := context.Background()
	byName := c.people(t).OrderBy(name.Ascending())

	unique, err := byName.Unique(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann", "bob", "cara", "dan", "Éva"}, Names(unique))

	set, err := byName.UniqueSet(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 5)

	var visited []string
	completed, err := byName.Enumerate(ctx, func(r ir.IRObject, i int) bool {
		visited = append(visited, string(r["name"].(ir.IRString)))
		return i < 1
	})
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, []string{"ann", "bob"}, visited)

	completed, err = byName.Enumerate(ctx, func(ir.IRObject, int) bool { return true })
	require.NoError(t, err)
	assert.True(t, completed)

	n := 0
	require.NoError(t, byName.ForEach(ctx, func(ir.IRObject) { n++ }))
	assert.Equal(t, 5, n)
}

func (c *conformance) testDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("filtered", func(t *testing.T) {
		qs := c.people(t)
		blue := qs.Filter(team.EqualTo(ir.IRString("blue")))

		n, err := blue.Delete(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = qs.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = blue.Delete(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("windowed", func(t *testing.T) {
		qs := c.people(t)

		n, err := qs.OrderBy(name.Ascending()).Slice(0, 2).Delete(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"cara", "dan", "Éva"}, all(t, qs.OrderBy(name.Ascending())))
	})
}

func (c *conformance) testErrors(t *testing.T) {
	ctx := context.Background()
	qs := c.people(t)

	_, err := qs.Filter(attribute.New("nope").EqualTo(ir.IRInt(1))).All(ctx)
	assert.True(t, queryset.IsUnknownField(err), "got %v", err)

	_, err = qs.OrderBy(attribute.New("nope").Ascending()).All(ctx)
	assert.True(t, queryset.IsUnknownField(err), "got %v", err)

	_, err = qs.Filter(age.GreaterThan(attribute.New("nope").Ref())).Count(ctx)
	assert.True(t, queryset.IsUnknownField(err), "got %v", err)

	_, err = qs.Filter(attribute.New("nope").Child("x").IsNull()).Delete(ctx)
	assert.True(t, queryset.IsUnknownField(err), "got %v", err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = qs.All(canceled)
	assert.True(t, queryset.IsBackendError(err), "got %v", err)
}

func (c *conformance) testScenario(t *testing.T) {
	ctx := context.Background()
	ds := Letters()
	qs := queryset.New(c.factory(t, ds), ds.Descriptor())
	letterAge := attribute.New("age")

	assert.Equal(t, []string{"c", "b"}, all(t, qs.Filter(letterAge.GreaterThan(ir.IRInt(1))).OrderBy(letterAge.Descending())))

	n, err := qs.Filter(letterAge.GreaterThanOrEqual(ir.IRInt(2))).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = qs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func (c *conformance) testFetchSpecRoundTrip(t *testing.T) {
	ds := People()
	backend := c.factory(t, ds)
	qs := queryset.New(backend, ds.Descriptor()).
		Filter(age.GreaterThan(ir.IRInt(20)), nick.IsNull()).
		Exclude(owner.BeginsWith("Z")).
		OrderBy(age.Descending(), name.Ascending()).
		Slice(0, 3)

	spec, err := qs.CompileFetchSpec()
	require.NoError(t, err)
	assert.NotEmpty(t, spec.Explain())

	back, err := queryset.FromFetchSpec(backend, spec)
	require.NoError(t, err)
	assert.True(t, back.Equal(qs), "round trip: %s vs %s", back, qs)
	assert.Equal(t, all(t, qs), all(t, back))
}
