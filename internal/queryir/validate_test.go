package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/querykit/internal/ir"
)

func TestValidate_Portable(t *testing.T) {
	f := Fetch{
		Entity: "Person",
		Predicate: AllOf(
			Comparison{Field: "age", Op: OpBetween, Value: ir.IRArray{ir.IRInt(1), ir.IRInt(5)}},
			Comparison{Field: "name", Op: OpBeginsWith, Value: ir.IRString("a"), Options: CaseInsensitive},
			Negate(Comparison{Field: "nick", Op: OpIsNull}),
		),
		Sort:  []SortDirective{{Field: "age", Direction: Ascending}},
		Range: Window(0, 10),
	}

	result := Validate(f)
	assert.True(t, result.IsPortable)
	assert.Empty(t, result.Warnings)
}

func TestValidate_NilPredicate(t *testing.T) {
	result := Validate(Fetch{Entity: "Person"})
	assert.True(t, result.IsPortable)
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name    string
		fetch   Fetch
		contain string
	}{
		{
			name:    "equal null",
			fetch:   Fetch{Predicate: Comparison{Field: "nick", Op: OpEqual, Value: ir.IRNull{}}},
			contain: "use IsNull",
		},
		{
			name:    "between inverted",
			fetch:   Fetch{Predicate: Comparison{Field: "age", Op: OpBetween, Value: ir.IRArray{ir.IRInt(5), ir.IRInt(1)}}},
			contain: "min > max",
		},
		{
			name:    "between malformed",
			fetch:   Fetch{Predicate: Comparison{Field: "age", Op: OpBetween, Value: ir.IRInt(5)}},
			contain: "{min, max}",
		},
		{
			name:    "in malformed",
			fetch:   Fetch{Predicate: Comparison{Field: "age", Op: OpIn, Value: ir.IRInt(5)}},
			contain: "array of candidates",
		},
		{
			name:    "empty or",
			fetch:   Fetch{Predicate: Not{Predicate: Or{}}},
			contain: "Empty OR",
		},
		{
			name:    "matches",
			fetch:   Fetch{Predicate: Comparison{Field: "name", Op: OpMatches, Value: ir.IRString("a+")}},
			contain: "regular expression",
		},
		{
			name:    "diacritics",
			fetch:   Fetch{Predicate: Comparison{Field: "name", Op: OpEqual, Value: ir.IRString("e"), Options: DiacriticInsensitive}},
			contain: "unaccent",
		},
		{
			name:    "nested sort",
			fetch:   Fetch{Sort: []SortDirective{{Field: "owner.name"}}},
			contain: "nested path 'owner.name'",
		},
		{
			name:    "negative range",
			fetch:   Fetch{Range: Window(-1, 2)},
			contain: "Negative range",
		},
		{
			name:    "empty field",
			fetch:   Fetch{Predicate: Comparison{Op: OpIsTrue}},
			contain: "empty field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.fetch)
			assert.False(t, result.IsPortable)
			if assert.Len(t, result.Warnings, 1) {
				assert.Contains(t, result.Warnings[0], tt.contain)
			}
		})
	}
}

func TestValidate_AccumulatesInOrder(t *testing.T) {
	f := Fetch{
		Predicate: AnyOf(
			Comparison{Field: "a", Op: OpEqual, Value: ir.IRNull{}},
			Comparison{Field: "b", Op: OpMatches, Value: ir.IRString(".")},
		),
	}

	result := Validate(f)
	assert.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], "'a'")
	assert.Contains(t, result.Warnings[1], "'b'")
}
