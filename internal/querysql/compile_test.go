package querysql

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/attribute"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/testutil"
)

var (
	name   = attribute.New("name")
	age    = attribute.New("age")
	nick   = attribute.New("nick")
	team   = attribute.New("team")
	tags   = attribute.New("tags")
	score  = attribute.New("score")
	active = attribute.New("active")
	born   = attribute.New("born")
	owner  = attribute.New("owner").Child("name")
)

var person = queryir.Descriptor{Entity: "Person"}

type compileCase struct {
	name  string
	fetch queryir.Fetch
}

func compileCases() []compileCase {
	where := func(p queryir.Predicate) queryir.Fetch { return queryir.Fetch{Predicate: p} }
	return []compileCase{
		{"match all", queryir.Fetch{}},
		{"comparison sorted window", queryir.Fetch{
			Predicate: age.GreaterThan(ir.IRInt(1)),
			Sort:      []queryir.SortDirective{age.Descending(), name.Ascending()},
			Range:     queryir.Window(1, 2),
		}},
		{"equal nil", where(nick.EqualTo(ir.IRNull{}))},
		{"not equal nil", where(nick.NotEqualTo(ir.IRNull{}))},
		{"case folded", where(name.EqualTo(ir.IRString("bob"), queryir.CaseInsensitive))},
		{"diacritic folded", where(name.EqualTo(ir.IRString("eve"), queryir.CaseInsensitive|queryir.DiacriticInsensitive))},
		{"between", where(age.Between(ir.IRInt(18), ir.IRInt(30)))},
		{"in", where(team.In(ir.IRString("red"), ir.IRString("blue")))},
		{"in empty", where(team.In())},
		{"like", where(name.Like("a*[x]?"))},
		{"begins with", where(name.BeginsWith("50%_"))},
		{"ends with ci", where(name.EndsWith("A", queryir.CaseInsensitive))},
		{"matches ci", where(name.Matches("b.b", queryir.CaseInsensitive))},
		{"contains substring", where(name.Contains(ir.IRString("an")))},
		{"contains element", where(tags.Contains(ir.IRString("sql")))},
		{"nested", where(owner.EqualTo(ir.IRString("Ada")))},
		{"field to field", where(score.LessThan(age.Ref()))},
		{"booleans", where(queryir.AnyOf(active.IsTrue(), queryir.Negate(age.IsNull())))},
		{"time", where(born.LessThan(ir.NewIRTime(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))))},
		{"offset only", queryir.Fetch{Range: queryir.FromOffset(3)}},
	}
}

func TestCompile_Golden(t *testing.T) {
	resolve := SchemaResolver(testutil.People().Schema)

	for _, d := range []Dialect{SQLite, SQLiteBasic, Postgres} {
		t.Run(d.String(), func(t *testing.T) {
			var b strings.Builder
			for _, tc := range compileCases() {
				b.WriteString("-- " + tc.name + "\n")
				q, err := Compiler{Dialect: d}.Compile(person, "Person", tc.fetch, resolve)
				if err != nil {
					b.WriteString("error: " + err.Error() + "\n")
					continue
				}
				b.WriteString(q.Select().String() + "\n")
			}

			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, d.String(), []byte(b.String()))
		})
	}
}

func TestCompile_ValuesAreNeverInterpolated(t *testing.T) {
	resolve := SchemaResolver(testutil.People().Schema)
	evil := `x'); DROP TABLE "Person"; --`

	for _, d := range []Dialect{SQLite, SQLiteBasic, Postgres} {
		q, err := Compiler{Dialect: d}.Compile(person, "Person", queryir.Fetch{Predicate: name.EqualTo(ir.IRString(evil))}, resolve)
		require.NoError(t, err)
		assert.NotContains(t, q.Select().SQL, "DROP")
		assert.Equal(t, []any{evil}, q.Args)
	}
}

func TestCompile_OrderByMandatory(t *testing.T) {
	resolve := SchemaResolver(testutil.People().Schema)

	for _, tc := range compileCases() {
		q, err := Compiler{Dialect: SQLite}.Compile(person, "Person", tc.fetch, resolve)
		require.NoError(t, err, tc.name)
		assert.True(t, strings.HasSuffix(q.OrderBy, "rowid ASC"), tc.name)
	}
}

func TestCompile_TieBreakDescending(t *testing.T) {
	resolve := SchemaResolver(testutil.People().Schema)
	fetch := queryir.Fetch{Sort: []queryir.SortDirective{age.Descending()}, TieBreak: queryir.Descending}

	q, err := Compiler{Dialect: SQLite}.Compile(person, "Person", fetch, resolve)
	require.NoError(t, err)
	assert.Equal(t, `"age" DESC, rowid DESC`, q.OrderBy)

	q, err = Compiler{Dialect: Postgres}.Compile(person, "Person", fetch, resolve)
	require.NoError(t, err)
	assert.Equal(t, `"age" DESC NULLS LAST, ctid DESC`, q.OrderBy)
}

func TestCompile_MatchesFoldsPattern(t *testing.T) {
	resolve := SchemaResolver(testutil.People().Schema)
	cd := queryir.CaseInsensitive | queryir.DiacriticInsensitive
	fetch := queryir.Fetch{Predicate: name.Matches("év.", cd)}

	q, err := Compiler{Dialect: SQLite}.Compile(person, "Person", fetch, resolve)
	require.NoError(t, err)
	assert.Equal(t, `qk_fold("name", 'd') REGEXP qk_fold(?, 'd')`, q.Where)
	assert.Equal(t, []any{"(?i)^(?:év.)$"}, q.Args)

	q, err = Compiler{Dialect: Postgres}.Compile(person, "Person", fetch, resolve)
	require.NoError(t, err)
	assert.Equal(t, `unaccent("name") ~* unaccent($1)`, q.Where)
	assert.Equal(t, []any{"^(?:év.)$"}, q.Args)

	q, err = Compiler{Dialect: SQLite}.Compile(person, "Person", queryir.Fetch{Predicate: name.Matches("év.")}, resolve)
	require.NoError(t, err)
	assert.Equal(t, `"name" REGEXP ?`, q.Where)
}

func TestQuery_CountAndDelete(t *testing.T) {
	resolve := SchemaResolver(testutil.People().Schema)
	windowed := queryir.Fetch{
		Predicate: age.GreaterThan(ir.IRInt(1)),
		Sort:      []queryir.SortDirective{age.Descending()},
		Range:     queryir.Window(0, 2),
	}
	unbounded := queryir.Fetch{Predicate: age.GreaterThan(ir.IRInt(1))}

	q, err := Compiler{Dialect: SQLite}.Compile(person, "Person", windowed, resolve)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM (SELECT 1 FROM "Person" WHERE "age" > ? ORDER BY "age" DESC, rowid ASC LIMIT 2) AS w`,
		q.Count().SQL)
	assert.Equal(t,
		`DELETE FROM "Person" WHERE rowid IN (SELECT rowid FROM "Person" WHERE "age" > ? ORDER BY "age" DESC, rowid ASC LIMIT 2)`,
		q.Delete().SQL)
	assert.Equal(t, []any{int64(1)}, q.Delete().Args)

	q, err = Compiler{Dialect: Postgres}.Compile(person, "Person", windowed, resolve)
	require.NoError(t, err)
	assert.Equal(t,
		`DELETE FROM "Person" WHERE ctid IN (SELECT ctid FROM "Person" WHERE "age" > $1 ORDER BY "age" DESC NULLS LAST, ctid ASC LIMIT 2)`,
		q.Delete().SQL)

	q, err = Compiler{Dialect: SQLite}.Compile(person, "Person", unbounded, resolve)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "Person" WHERE "age" > ?`, q.Count().SQL)
	assert.Equal(t, `DELETE FROM "Person" WHERE "age" > ?`, q.Delete().SQL)

	q, err = Compiler{Dialect: SQLite}.Compile(person, "Person", queryir.Fetch{}, resolve)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "Person"`, q.Delete().SQL)
	assert.Equal(t, `SELECT "id", "name" FROM "Person" ORDER BY rowid ASC`, q.Select(QuoteIdent("id"), QuoteIdent("name")).SQL)
}

func TestQuery_Explain(t *testing.T) {
	q, err := Compiler{Dialect: Postgres}.Compile(person, "people", queryir.Fetch{Predicate: age.EqualTo(ir.IRInt(3))}, SchemaResolver(testutil.People().Schema))
	require.NoError(t, err)
	assert.Equal(t, `postgres: SELECT * FROM "people" WHERE "age" = $1 ORDER BY ctid ASC -- args: [3]`, q.Explain())
	assert.Equal(t, "Person", q.Fetch.Entity)
}

func TestCompile_Errors(t *testing.T) {
	resolve := SchemaResolver(testutil.People().Schema)
	tests := []struct {
		name  string
		fetch queryir.Fetch
		check func(error) bool
	}{
		{"unknown field", queryir.Fetch{Predicate: attribute.New("salary").IsNull()}, queryset.IsUnknownField},
		{"unknown sort", queryir.Fetch{Sort: []queryir.SortDirective{attribute.New("salary").Ascending()}}, queryset.IsUnknownField},
		{"nested into scalar", queryir.Fetch{Predicate: attribute.New("age").Child("x").IsNull()}, queryset.IsUnknownField},
		{"negative offset", queryir.Fetch{Range: queryir.FromOffset(-1)}, queryset.IsInvalidRange},
		{"negative limit", queryir.Fetch{Range: queryir.Window(0, -1)}, queryset.IsInvalidRange},
		{"array parameter", queryir.Fetch{Predicate: tags.EqualTo(ir.IRArray{ir.IRString("go")})}, queryset.IsUnsupported},
		{"pattern needs string", queryir.Fetch{Predicate: queryir.Comparison{Field: "name", Op: queryir.OpLike, Value: ir.IRInt(1)}}, queryset.IsUnsupported},
		{"bad between", queryir.Fetch{Predicate: queryir.Comparison{Field: "age", Op: queryir.OpBetween, Value: ir.IRInt(1)}}, queryset.IsUnsupported},
		{"bad in", queryir.Fetch{Predicate: queryir.Comparison{Field: "age", Op: queryir.OpIn, Value: ir.IRInt(1)}}, queryset.IsUnsupported},
		{"odd nested segment", queryir.Fetch{Predicate: attribute.New("owner").Child("first name").IsNull()}, queryset.IsUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compiler{Dialect: SQLite}.Compile(person, "Person", tt.fetch, resolve)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestDialect_ParseRoundTrip(t *testing.T) {
	for _, d := range []Dialect{SQLite, SQLiteBasic, Postgres} {
		got, err := ParseDialect(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestPatternEscaping(t *testing.T) {
	assert.Equal(t, "a[*]b[?]c[[]d]", globEscape("a*b?c[d]"))
	assert.Equal(t, "a*b?[[]x]", likeGlob("a*b?[x]"))
	assert.Equal(t, `50\%\_\\`, likeEscape(`50%_\`))
	assert.Equal(t, `a%b_\%`, likeSQL("a*b?%"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
}
