package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/config"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/testutil"
)

func openTarget(t *testing.T, driver string) Target {
	t.Helper()
	cfg := config.BackendConfig{Driver: driver, Seed: "testdata/people.yaml"}
	if driver != config.DriverMemory {
		cfg.DSN = filepath.Join(t.TempDir(), "seed.db")
	}
	target, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { target.Close() })
	return target
}

func TestOpen_SeedMatchesFixture(t *testing.T) {
	ds := testutil.People()

	for _, driver := range []string{config.DriverMemory, config.DriverSQLite, config.DriverGorm} {
		t.Run(driver, func(t *testing.T) {
			target := openTarget(t, driver)

			got, err := queryset.New[ir.IRObject](target, ds.Descriptor()).
				OrderBy(queryir.SortDirective{Field: "id"}).
				All(context.Background())
			require.NoError(t, err)
			require.Len(t, got, len(ds.Records))
			for i, want := range ds.Records {
				assert.True(t, ir.Equal(want, got[i]), "record %d: want %v, got %v", i, want, got[i])
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, config.BackendConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, `unknown driver "oracle"`)

	_, err = Open(ctx, config.BackendConfig{Driver: config.DriverGorm}, nil)
	assert.ErrorContains(t, err, "open gorm backend")

	_, err = Open(ctx, config.BackendConfig{Driver: config.DriverMemory, Seed: "testdata/missing.yaml"}, nil)
	assert.ErrorContains(t, err, "failed to read seed file")
}

func TestLoadSeed_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}
	ctx := context.Background()

	_, err := LoadSeed(write("typo.yaml", "entitys: []\n"))
	assert.ErrorContains(t, err, "entitys")

	seed, err := LoadSeed(write("kind.yaml", "entities:\n  - entity: P\n    columns: [{name: a, kind: decimal}]\n"))
	require.NoError(t, err)
	_, err = seed.Apply(ctx, NewMemory())
	assert.ErrorContains(t, err, `unknown column kind "decimal"`)

	seed, err = LoadSeed(write("time.yaml", "entities:\n  - entity: P\n    columns: [{name: at, kind: time}]\n    records: [{at: yesterday}]\n"))
	require.NoError(t, err)
	_, err = seed.Apply(ctx, NewMemory())
	assert.ErrorContains(t, err, "P record 0: column at")
}

func TestCoerce(t *testing.T) {
	schema := queryir.Schema{Entity: "P", Columns: []queryir.Column{
		{Name: "score", Kind: ir.KindFloat},
		{Name: "at", Kind: ir.KindTime},
		{Name: "note", Kind: ir.KindString, Nullable: true},
	}}
	in := ir.IRObject{"score": ir.IRInt(6), "at": ir.IRString("2020-01-02T03:04:05Z")}

	got, err := Coerce(schema, in)
	require.NoError(t, err)
	assert.Equal(t, ir.IRFloat(6), got["score"])
	assert.Equal(t, ir.NewIRTime(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)), got["at"])
	assert.Equal(t, ir.IRNull{}, got["note"])
	assert.Equal(t, ir.IRInt(6), in["score"], "input is not modified")
}

func TestApply_CountsRecords(t *testing.T) {
	seed, err := LoadSeed("testdata/people.yaml")
	require.NoError(t, err)

	n, err := seed.Apply(context.Background(), NewMemory())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
