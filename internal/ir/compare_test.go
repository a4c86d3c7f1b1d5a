package ir

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	early := NewIRTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	late := NewIRTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name   string
		a, b   IRValue
		want   int
		wantOK bool
	}{
		{"ints", IRInt(1), IRInt(2), -1, true},
		{"int vs float", IRInt(2), IRFloat(1.5), 1, true},
		{"float vs int equal", IRFloat(3), IRInt(3), 0, true},
		{"strings", IRString("b"), IRString("a"), 1, true},
		{"bools", IRBool(false), IRBool(true), -1, true},
		{"times", early, late, -1, true},
		{"string vs int", IRString("1"), IRInt(1), 0, false},
		{"null", IRNull{}, IRInt(1), 0, false},
		{"nil", nil, nil, 0, false},
		{"arrays", IRArray{}, IRArray{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(IRInt(1), IRFloat(1)))
	assert.True(t, Equal(IRNull{}, nil))
	assert.False(t, Equal(IRNull{}, IRString("")))
	assert.True(t, Equal(IRArray{IRInt(1), IRString("a")}, IRArray{IRInt(1), IRString("a")}))
	assert.False(t, Equal(IRArray{IRInt(1)}, IRArray{IRInt(1), IRInt(2)}))
	assert.True(t, Equal(IRObject{"a": IRInt(1)}, IRObject{"a": IRFloat(1)}))
	assert.False(t, Equal(IRObject{"a": IRInt(1)}, IRObject{"b": IRInt(1)}))
}

func TestSortCompare_TotalOrder(t *testing.T) {
	vals := []IRValue{IRString("b"), IRInt(2), IRNull{}, IRFloat(1.5), IRString("a"), IRBool(true)}
	slices.SortStableFunc(vals, SortCompare)

	assert.Equal(t, []IRValue{IRNull{}, IRFloat(1.5), IRInt(2), IRString("a"), IRString("b"), IRBool(true)}, vals)
}
