package querydoc

import (
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/attribute"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/memstore"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/testutil"
)

func TestLoad_FormatsAgree(t *testing.T) {
	var fetches []queryir.Fetch
	for _, path := range []string{"testdata/adults.yaml", "testdata/adults.json", "testdata/adults.cue"} {
		doc, err := Load(path)
		require.NoError(t, err, path)
		f, err := doc.Fetch()
		require.NoError(t, err, path)
		fetches = append(fetches, f)
	}

	assert.True(t, fetches[0].Equal(fetches[1]), "yaml %s\njson %s", fetches[0], fetches[1])
	assert.True(t, fetches[0].Equal(fetches[2]), "yaml %s\ncue  %s", fetches[0], fetches[2])

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "adults", []byte(fetches[0].String()+"\n"))
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{"q.yaml": FormatYAML, "q.YML": FormatYAML, "q.json": FormatJSON, "q.cue": FormatCUE} {
		got, err := FormatOf(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatOf("q.toml")
	assert.Error(t, err)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		doc    string
		want   string
	}{
		{"yaml unknown key", FormatYAML, "entty: Person\n", "entty"},
		{"json unknown key", FormatJSON, `{"entity": "Person", "limt": 1}`, "limt"},
		{"missing entity", FormatYAML, "limit: 1\n", "entity is required"},
		{"cue negative limit", FormatCUE, `entity: "Person", limit: -1`, "limit"},
		{"cue unknown op", FormatCUE, `entity: "Person", where: {field: "age", op: "approx", value: 1}`, "op"},
		{"cue unknown key", FormatCUE, `entity: "Person", sort: ["age"]`, "sort"},
		{"cue syntax", FormatCUE, `entity: `, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), tt.format, "q.cue")
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)

			var derr *Error
			assert.ErrorAs(t, err, &derr)
		})
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"mixed node", "entity: P\nwhere: {all: [{field: a}], field: age}\n", "where: node mixes all and field"},
		{"empty node", "entity: P\nwhere: {op: eq}\n", "where: node needs one of"},
		{"unknown op", "entity: P\nwhere: {field: age, op: approx}\n", `where: unknown op "approx"`},
		{"bad options", "entity: P\nwhere: {field: age, value: 1, options: x}\n", `unknown options "x"`},
		{"between needs pair", "entity: P\nwhere: {field: age, op: between, value: [1]}\n", "between takes a [min, max] list"},
		{"in needs list", "entity: P\nwhere: {field: age, op: in, value: 1}\n", "in takes a list"},
		{"null takes no value", "entity: P\nwhere: {field: age, op: is_null, value: 1}\n", "is_null takes no value"},
		{"nested error path", "entity: P\nwhere: {any: [{field: a}, {not: {field: b, op: nope}}]}\n", "where.any[1].not: unknown op"},
		{"empty segment", "entity: P\nwhere: {field: owner..name}\n", "empty segment"},
		{"bad order", "entity: P\norder: [\"-\"]\n", "order[0]: empty field path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.doc), FormatYAML, "")
			require.NoError(t, err)
			_, err = doc.Fetch()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)

			var derr *Error
			assert.ErrorAs(t, err, &derr)
		})
	}
}

func TestFetch_Defaults(t *testing.T) {
	doc, err := Parse([]byte("entity: Person\nwhere: {field: name, value: ann}\norder: [+age]\n"), FormatYAML, "")
	require.NoError(t, err)
	f, err := doc.Fetch()
	require.NoError(t, err)

	assert.Equal(t, queryir.Comparison{Field: "name", Op: queryir.OpEqual, Value: ir.IRString("ann")}, f.Predicate)
	assert.Equal(t, []queryir.SortDirective{{Field: "age", Direction: queryir.Ascending}}, f.Sort)
	assert.True(t, f.Range.IsUnbounded())
	assert.Equal(t, queryir.Descriptor{Entity: "Person"}, doc.Descriptor())
}

func TestFromFetch_RoundTrip(t *testing.T) {
	age, name, score, born := attribute.New("age"), attribute.New("name"), attribute.New("score"), attribute.New("born")
	f := queryir.Fetch{
		Entity: "Person",
		Predicate: queryir.AllOf(
			age.Between(ir.IRInt(20), ir.IRInt(30)),
			queryir.AnyOf(name.Like("a*", queryir.CaseInsensitive), attribute.New("nick").IsNull()),
			queryir.Negate(score.GreaterThan(age.Ref())),
			born.LessThan(ir.NewIRTime(time.Date(1999, 1, 2, 3, 4, 5, 6, time.UTC))),
			attribute.New("team").In(ir.IRString("red"), ir.IRString("blue")),
			score.GreaterThanOrEqual(ir.IRFloat(7.5)),
		),
		Sort:  []queryir.SortDirective{age.Descending(), name.Ascending()},
		Range: queryir.Window(1, 2),
	}

	for _, format := range []Format{FormatYAML, FormatJSON, FormatCUE} {
		t.Run(format.String(), func(t *testing.T) {
			data, err := Marshal(FromFetch(f), format)
			require.NoError(t, err)
			doc, err := Parse(data, format, "roundtrip.cue")
			require.NoError(t, err, string(data))
			got, err := doc.Fetch()
			require.NoError(t, err)
			assert.True(t, f.Equal(got), "want %s\ngot  %s", f, got)
		})
	}
}

func TestDocument_ExecutesAgainstBackend(t *testing.T) {
	ds := testutil.People()
	st := memstore.New()
	require.NoError(t, st.Define(ds.Schema))
	st.Insert(ds.Schema.Entity, ds.Records...)

	doc, err := Parse([]byte(`
entity: Person
where:
  field: team
  op: in
  value: [red, blue]
order: [-age, name]
limit: 3
`), FormatYAML, "")
	require.NoError(t, err)
	f, err := doc.Fetch()
	require.NoError(t, err)

	qs := queryset.NewWithState[ir.IRObject](st, doc.Descriptor(), f.Predicate, f.Sort, f.Range)
	got, err := qs.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cara", "ann", "bob"}, testutil.Names(got))
}
