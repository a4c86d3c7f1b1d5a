package gormstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/testutil"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func load(t *testing.T, ds testutil.Dataset) queryset.Backend[ir.IRObject] {
	t.Helper()
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, s.Define(ctx, ds.Schema))
	require.NoError(t, s.Insert(ctx, ds.Schema.Entity, ds.Records...))
	return s
}

func TestConformance(t *testing.T) {
	testutil.RunBackendConformance(t, load, testutil.WithoutRegexp(), testutil.WithoutDiacritics())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.ErrorContains(t, err, "path is required")
}

func TestOpen_ReloadsCatalog(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	ds := testutil.Letters()

	s1, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s1.Define(ctx, ds.Schema))
	require.NoError(t, s1.Insert(ctx, "Letter", ds.Records...))
	require.NoError(t, s1.Close())

	s2 := openTestStore(t, path)
	require.NoError(t, s2.Health(ctx))
	got, ok := s2.Schema("Letter")
	require.True(t, ok)
	assert.Equal(t, ds.Schema, got)

	n, err := queryset.New[ir.IRObject](s2, ds.Descriptor()).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var cols []Column
	require.NoError(t, s2.DB().Order("position").Find(&cols).Error)
	assert.Len(t, cols, 3)
	assert.Equal(t, "name", cols[1].Name)
}

func TestDefine_Conflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	schema := testutil.Letters().Schema
	require.NoError(t, s.Define(ctx, schema))

	changed := queryir.Schema{Entity: "Letter", Columns: schema.Columns[:1]}
	assert.ErrorContains(t, s.Define(ctx, changed), "different columns")
}

func TestInsert_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"))
	ds := testutil.Letters()
	require.NoError(t, s.Define(ctx, ds.Schema))

	err := s.Insert(ctx, "Letter", ds.Records[0], ir.IRObject{"id": ir.IRInt(2)})
	assert.ErrorContains(t, err, "insert record 1")

	n, err := queryset.New[ir.IRObject](s, ds.Descriptor()).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompile_RejectsUnsupported(t *testing.T) {
	ds := testutil.People()
	s := load(t, ds)

	_, err := s.Compile(ds.Descriptor(), queryir.Fetch{
		Predicate: queryir.Comparison{Field: "name", Op: queryir.OpEqual, Value: ir.IRString("eva"), Options: queryir.CaseInsensitive | queryir.DiacriticInsensitive},
	})
	assert.True(t, queryset.IsUnsupported(err), "got %v", err)
}
