package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRange_ZeroValueIsUnbounded(t *testing.T) {
	var r Range
	assert.True(t, r.IsUnbounded())
	assert.True(t, r.Valid())
	assert.Equal(t, "", r.String())

	lo, hi := r.Bounds(3)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 3, hi)
}

func TestRange_Valid(t *testing.T) {
	assert.True(t, Window(0, 0).Valid())
	assert.False(t, Window(-1, 2).Valid())
	assert.False(t, Window(1, -2).Valid())
	assert.False(t, FromOffset(-1).Valid())
}

func TestRange_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		r      Range
		n      int
		lo, hi int
	}{
		{"window inside", Window(1, 2), 5, 1, 3},
		{"limit past end", Window(3, 10), 5, 3, 5},
		{"offset past end", Window(7, 1), 5, 5, 5},
		{"offset only", FromOffset(2), 5, 2, 5},
		{"zero limit", Window(0, 0), 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := tt.r.Bounds(tt.n)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestRange_Slice(t *testing.T) {
	var unbounded Range
	assert.Equal(t, Window(2, 3), unbounded.Slice(2, 5))

	// Composes relative to the existing offset.
	assert.Equal(t, Window(3, 2), Window(1, 10).Slice(2, 4))

	// Never extends past the existing limit.
	assert.Equal(t, Window(3, 1), Window(1, 3).Slice(2, 10))
	assert.Equal(t, Window(6, 0), Window(1, 3).Slice(5, 8))

	// Reversed bounds are carried through for the backend to reject.
	assert.False(t, unbounded.Slice(4, 2).Valid())

	assert.Equal(t, Window(4, 1), FromOffset(4).First())
}

func TestRange_String(t *testing.T) {
	assert.Equal(t, "LIMIT 2", Window(0, 2).String())
	assert.Equal(t, "OFFSET 1", FromOffset(1).String())
	assert.Equal(t, "OFFSET 1 LIMIT 2", Window(1, 2).String())
}
