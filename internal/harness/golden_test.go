package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/ir"
)

func TestMarshalTrace_Canonical(t *testing.T) {
	count, found := 2, false
	result := NewResult()
	result.Trace = []TraceEvent{
		{Seq: 1, Op: OpCount, Query: `P WHERE name == "a"`, Count: &count},
		{Seq: 2, Op: OpAt, Query: "P ORDER BY id ASC", Found: &found, Keys: []ir.IRValue{}},
		{Seq: 3, Op: OpList, Query: "P", Keys: []ir.IRValue{ir.IRInt(1), ir.IRString("b")}},
		{Seq: 4, Op: OpOne, Query: "P", Error: "NO_MATCH"},
	}

	data, err := MarshalTrace("demo", result)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"demo","trace":[`+
		`{"count":2,"op":"count","query":"P WHERE name == \"a\"","seq":1},`+
		`{"found":false,"keys":[],"op":"at","query":"P ORDER BY id ASC","seq":2},`+
		`{"keys":[1,"b"],"op":"list","query":"P","seq":3},`+
		`{"error":"NO_MATCH","op":"one","query":"P","seq":4}]}`, string(data))
}

func TestMarshalTrace_Empty(t *testing.T) {
	data, err := MarshalTrace("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"empty","trace":[]}`, string(data))
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/delete_tasks.yaml")
	require.NoError(t, err)

	result := RunWithGolden(t, scenario, openBackend(t, "memory"))
	AssertGolden(t, scenario.Name, result)
}
