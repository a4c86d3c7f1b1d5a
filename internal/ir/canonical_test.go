package ir

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(math.MaxInt64), "9223372036854775807"},
		{"float", IRFloat(1.5), "1.5"},
		{"integral float keeps fraction", IRFloat(2), "2.0"},
		{"large float", IRFloat(1e21), "1e+21"},
		{"bool true", IRBool(true), "true"},
		{"null", IRNull{}, "null"},
		{"time", NewIRTime(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)), `{"$time":"2024-05-06T07:08:09Z"}`},
		{"keypath", IRKeyPath("owner.name"), `{"$keypath":"owner.name"}`},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"simple object", IRObject{"a": IRInt(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{
			"b": IRInt(1),
			"a": IRInt(2),
		},
		"a": IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// e + combining acute accent must encode identically to the precomposed form.
	decomposed, err := MarshalCanonical(IRString("e\u0301"))
	require.NoError(t, err)
	precomposed, err := MarshalCanonical(IRString("\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, precomposed, decomposed)
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	result, err = MarshalCanonical(IRString(`a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result), "escaped backslash text must stay escaped")
}

func TestMarshalCanonicalDistinguishesKinds(t *testing.T) {
	pairs := [][2]IRValue{
		{IRInt(1), IRFloat(1)},
		{IRString("a.b"), IRKeyPath("a.b")},
		{IRString("null"), IRNull{}},
	}
	for _, p := range pairs {
		a, err := MarshalCanonical(p[0])
		require.NoError(t, err)
		b, err := MarshalCanonical(p[1])
		require.NoError(t, err)
		assert.NotEqual(t, string(a), string(b), "%T vs %T", p[0], p[1])
	}
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(IRFloat(math.NaN()))
	assert.Error(t, err)

	_, err = MarshalCanonical(IRArray{IRFloat(math.Inf(1))})
	assert.ErrorContains(t, err, "array[0]")
}

func TestMarshalCanonicalGoNatives(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{"b": []any{1, "x"}, "a": true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":true,"b":[1,"x"]}`, string(result))

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestUnmarshalCanonicalRoundTrip(t *testing.T) {
	born := NewIRTime(time.Date(1999, 5, 5, 12, 30, 0, 250, time.UTC))
	values := []IRValue{
		IRNull{},
		IRInt(7),
		IRFloat(2),
		IRString("Zoë"),
		IRArray{IRString("go"), IRInt(1), born},
		IRObject{"name": IRString("Ada"), "at": born, "ref": IRKeyPath("owner.name")},
		IRArray{},
	}

	for _, v := range values {
		data, err := MarshalCanonical(v)
		require.NoError(t, err)
		got, err := UnmarshalCanonical(data)
		require.NoError(t, err, string(data))
		assert.True(t, Equal(v, got), "%s decoded as %#v", data, got)
	}
}

func TestUnmarshalCanonicalRejectsBadTime(t *testing.T) {
	_, err := UnmarshalCanonical([]byte(`{"$time":"yesterday"}`))
	assert.Error(t, err)
}
