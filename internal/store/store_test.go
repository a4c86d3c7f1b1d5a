package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/attribute"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/testutil"
)

// createTestStore opens a fresh database in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func load(t *testing.T, ds testutil.Dataset) queryset.Backend[ir.IRObject] {
	t.Helper()
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Define(ctx, ds.Schema))
	require.NoError(t, s.Insert(ctx, ds.Schema.Entity, ds.Records...))
	return s
}

func TestConformance(t *testing.T) {
	testutil.RunBackendConformance(t, load)
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_ReloadsSchemas(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	ds := testutil.People()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Define(ctx, ds.Schema))
	require.NoError(t, s1.Insert(ctx, ds.Schema.Entity, ds.Records...))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, ok := s2.Schema("Person")
	require.True(t, ok)
	assert.Equal(t, ds.Schema, got)
	assert.Equal(t, []string{"Person"}, s2.Entities())

	qs := queryset.New[ir.IRObject](s2, ds.Descriptor()).OrderBy(attribute.New("name").Ascending())
	records, err := qs.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann", "bob", "cara", "dan", "Éva"}, testutil.Names(records))
}

func TestDefine(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	schema := testutil.Letters().Schema

	require.NoError(t, s.Define(ctx, schema))
	require.NoError(t, s.Define(ctx, schema), "same columns is a no-op")

	changed := schema
	changed.Columns = append([]queryir.Column{}, schema.Columns...)
	changed.Columns[2].Nullable = true
	assert.ErrorContains(t, s.Define(ctx, changed), "different columns")

	assert.Error(t, s.Define(ctx, queryir.Schema{Entity: "Empty"}))
}

func TestInsert_IsAtomic(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ds := testutil.Letters()
	require.NoError(t, s.Define(ctx, ds.Schema))

	bad := ir.IRObject{"id": ir.IRInt(9), "name": ir.IRString("z"), "age": ir.IRInt(9), "extra": ir.IRBool(true)}
	err := s.Insert(ctx, "Letter", ds.Records[0], bad)
	assert.ErrorContains(t, err, "insert record 1")

	n, err := queryset.New[ir.IRObject](s, ds.Descriptor()).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorContains(t, s.Insert(ctx, "Nope", ds.Records[0]), `unknown entity "Nope"`)
}

func TestCompile_UnknownEntity(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Compile(queryir.Descriptor{Entity: "Ghost"}, queryir.Fetch{Predicate: attribute.New("x").IsNull()})
	assert.True(t, queryset.IsUnknownField(err), "got %v", err)
}

func TestDecompose_ForeignSpec(t *testing.T) {
	s := createTestStore(t)
	_, _, err := s.Decompose(nil)
	assert.ErrorContains(t, err, "foreign fetch spec")
}

func TestQueryFunctions(t *testing.T) {
	assert.Equal(t, "eva", fold("Éva", "cd"))
	assert.Equal(t, "Eva", fold("Éva", "d"))
	assert.Equal(t, int64(3), fold(int64(3), "c"))
	assert.Nil(t, fold(nil, "c"))

	got, err := matchRegexp("^(?:b.b)$", "bob")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = matchRegexp("^(?:b.b)$", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = matchRegexp("(", "x")
	assert.Error(t, err)
}

func TestExplain_IsSQL(t *testing.T) {
	ds := testutil.People()
	s := load(t, ds)

	spec, err := s.Compile(ds.Descriptor(), queryir.Fetch{Predicate: attribute.New("age").GreaterThan(ir.IRInt(3))})
	require.NoError(t, err)
	assert.Equal(t, `sqlite: SELECT * FROM "Person" WHERE "age" > ? ORDER BY rowid ASC -- args: [3]`, spec.Explain())
}
