package pgstore

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/attribute"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/testutil"
)

// openTestStore connects to QUERYKIT_POSTGRES_DSN in a fresh namespace
// that is dropped when the test ends.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("QUERYKIT_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUERYKIT_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	ns := "qk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s, err := Open(ctx, Config{DSN: dsn, Namespace: ns, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.Pool().Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{ns}.Sanitize()+" CASCADE")
		s.Close()
	})
	return s
}

func load(t *testing.T, ds testutil.Dataset) queryset.Backend[ir.IRObject] {
	t.Helper()
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Define(ctx, ds.Schema))
	require.NoError(t, s.Insert(ctx, ds.Schema.Entity, ds.Records...))
	return s
}

func TestConformance(t *testing.T) {
	if os.Getenv("QUERYKIT_POSTGRES_DSN") == "" {
		t.Skip("QUERYKIT_POSTGRES_DSN not set")
	}
	var opts []testutil.ConformanceOption
	if probe := openTestStore(t); !probe.unaccent {
		opts = append(opts, testutil.WithoutDiacritics())
	}
	testutil.RunBackendConformance(t, load, opts...)
}

func TestDefine_ReloadsInNamespace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ds := testutil.Letters()
	require.NoError(t, s.Define(ctx, ds.Schema))

	fresh := newCatalog()
	require.NoError(t, fresh.load(ctx, s.Pool()))
	got, ok := fresh.get("Letter")
	require.True(t, ok)
	assert.Equal(t, ds.Schema, got)
}

func TestInsert_RollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ds := testutil.Letters()
	require.NoError(t, s.Define(ctx, ds.Schema))

	err := s.Insert(ctx, "Letter", ds.Records[0], ir.IRObject{"id": ir.IRString("x")})
	assert.ErrorContains(t, err, "insert record 1")

	n, err := queryset.New[ir.IRObject](s, ds.Descriptor()).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// offline builds a Store with a declared catalog and no connection, for
// compile-only tests.
func offline(unaccent bool) *Store {
	s := &Store{unaccent: unaccent, catalog: newCatalog()}
	ds := testutil.People()
	s.catalog.schemas[ds.Schema.Entity] = ds.Schema
	return s
}

func TestCompile_WithoutUnaccent(t *testing.T) {
	desc := testutil.People().Descriptor()
	name := attribute.New("name")
	folded := queryir.Fetch{Predicate: queryir.AllOf(
		name.BeginsWith("b"),
		name.EqualTo(ir.IRString("eva"), queryir.CaseInsensitive|queryir.DiacriticInsensitive),
	)}

	_, err := offline(false).Compile(desc, folded)
	assert.True(t, queryset.IsUnsupported(err), "got %v", err)

	spec, err := offline(true).Compile(desc, folded)
	require.NoError(t, err)
	assert.Contains(t, spec.Explain(), `lower(unaccent("name")) = lower(unaccent($2))`)

	_, err = offline(false).Compile(desc, queryir.Fetch{Predicate: name.EqualTo(ir.IRString("bob"), queryir.CaseInsensitive)})
	assert.NoError(t, err)
}

func TestCompile_UnknownEntity(t *testing.T) {
	_, err := offline(true).Compile(queryir.Descriptor{Entity: "Ghost"}, queryir.Fetch{Sort: []queryir.SortDirective{attribute.New("x").Ascending()}})
	assert.True(t, queryset.IsUnknownField(err), "got %v", err)
}

func TestDecompose_RoundTrip(t *testing.T) {
	s := offline(true)
	desc := testutil.People().Descriptor()
	fetch := queryir.Fetch{
		Predicate: attribute.New("age").GreaterThan(ir.IRInt(3)),
		Sort:      []queryir.SortDirective{attribute.New("name").Descending()},
		Range:     queryir.Window(1, 2),
	}

	spec, err := s.Compile(desc, fetch)
	require.NoError(t, err)
	gotDesc, gotFetch, err := s.Decompose(spec)
	require.NoError(t, err)
	assert.Equal(t, desc, gotDesc)
	fetch.Entity = desc.Entity
	assert.True(t, fetch.Equal(gotFetch), "got %s", gotFetch)
}
