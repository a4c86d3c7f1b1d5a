package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/people_queries.yaml")
	require.NoError(t, err)

	assert.Equal(t, "people-queries", scenario.Name)
	assert.Equal(t, "Person", scenario.Entity)
	assert.Equal(t, DefaultKey, scenario.Key)
	assert.Equal(t, []string{filepath.Join("testdata", "seeds", "people.yaml")}, scenario.Seeds)
	assert.Len(t, scenario.Flow, 15)
	assert.Len(t, scenario.Assertions, 3)

	for i, step := range scenario.Flow {
		assert.Equal(t, "Person", step.Query.Entity, "flow[%d] inherits the scenario entity", i)
	}
	assert.Equal(t, "window", scenario.Flow[2].CountPolicy)
	assert.Equal(t, 1, scenario.Flow[7].Index)
	require.NotNil(t, scenario.Flow[1].Expect.Count)
	assert.Equal(t, 2, *scenario.Flow[1].Expect.Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingSeed(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: s
description: d
entity: Person
seeds: [nope.yaml]
flow:
  - op: count
    query: {}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed file not found")
}

func TestLoadScenarioWithBasePath_AbsoluteSeedPath(t *testing.T) {
	seed, err := filepath.Abs("testdata/seeds/people.yaml")
	require.NoError(t, err)

	path := writeScenario(t, t.TempDir(), `
name: s
description: d
entity: Person
seeds: [`+seed+`]
flow:
  - op: count
    query: {}
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, []string{seed}, scenario.Seeds)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing name",
			content: "description: d\nentity: P\nflow: [{op: count, query: {}}]\n",
			want:    "name is required",
		},
		{
			name:    "missing description",
			content: "name: s\nentity: P\nflow: [{op: count, query: {}}]\n",
			want:    "description is required",
		},
		{
			name:    "missing flow",
			content: "name: s\ndescription: d\nentity: P\n",
			want:    "flow list is required",
		},
		{
			name:    "unknown op",
			content: "name: s\ndescription: d\nentity: P\nflow: [{op: fetch, query: {}}]\n",
			want:    `flow[0]: unknown op "fetch"`,
		},
		{
			name:    "missing entity",
			content: "name: s\ndescription: d\nflow: [{op: count, query: {}}]\n",
			want:    "flow[0]: query entity is required",
		},
		{
			name:    "bad query",
			content: "name: s\ndescription: d\nentity: P\nflow: [{op: list, query: {where: {field: age, op: approx}}}]\n",
			want:    `flow[0]: where: unknown op "approx"`,
		},
		{
			name:    "count policy on list",
			content: "name: s\ndescription: d\nentity: P\nflow: [{op: list, count_policy: window, query: {}}]\n",
			want:    "count_policy only applies to count",
		},
		{
			name:    "bad setup kind",
			content: "name: s\ndescription: d\nentity: P\nsetup: [{entity: P, columns: [{name: a, kind: decimal}]}]\nflow: [{op: count, query: {}}]\n",
			want:    "setup[0]: P.a",
		},
		{
			name:    "assertion without type",
			content: "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {}}]\nassertions: [{count: 1}]\n",
			want:    "assertions[0]: type is required",
		},
		{
			name:    "unknown assertion type",
			content: "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {}}]\nassertions: [{type: trace_contains}]\n",
			want:    `unknown assertion type "trace_contains"`,
		},
		{
			name:    "trace_count unknown op",
			content: "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {}}]\nassertions: [{type: trace_count, op: invoke, count: 1}]\n",
			want:    "trace_count needs a known op",
		},
		{
			name:    "trace_count negative",
			content: "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {}}]\nassertions: [{type: trace_count, op: count, count: -1}]\n",
			want:    "count must be non-negative",
		},
		{
			name:    "trace_order without ops",
			content: "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {}}]\nassertions: [{type: trace_order}]\n",
			want:    "ops list is required",
		},
		{
			name:    "final_state without entity",
			content: "name: s\ndescription: d\nflow: [{op: count, query: {entity: P}}]\nassertions: [{type: final_state, count: 1}]\n",
			want:    "entity is required for final_state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_UnknownFieldsRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"top level", "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {}}]\nassertion: []\n", "assertion"},
		{"step", "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {}, expected: {}}]\n", "expected"},
		{"query", "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {filter: {}}}]\n", "filter"},
		{"expect", "name: s\ndescription: d\nentity: P\nflow: [{op: count, query: {}, expect: {rows: 1}}]\n", "rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to parse YAML")
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestParseScenario_MalformedYAML(t *testing.T) {
	_, err := ParseScenario([]byte("name: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_TraceCountZeroAllowed(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: s
description: d
entity: P
key: name
flow: [{op: count, query: {}}]
assertions: [{type: trace_count, op: delete, count: 0}]
`))
	require.NoError(t, err)
	assert.Equal(t, "name", scenario.Key)
	assert.Equal(t, 0, scenario.Assertions[0].Count)
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "trace_count", AssertTraceCount)
	assert.Equal(t, "trace_order", AssertTraceOrder)
	assert.Equal(t, "final_state", AssertFinalState)
}

func TestLoadExampleScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			assert.NoError(t, err)
		})
	}
}
