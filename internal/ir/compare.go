package ir

import (
	"cmp"
	"strings"
)

// Compare orders two values of compatible kinds.
// Integers and floats compare numerically with each other. Strings compare
// bytewise, booleans order false before true, times chronologically.
// Returns ok=false when the kinds are incomparable (including any null).
func Compare(a, b IRValue) (int, bool) {
	if IsNull(a) || IsNull(b) {
		return 0, false
	}

	switch av := a.(type) {
	case IRInt:
		switch bv := b.(type) {
		case IRInt:
			return cmp.Compare(av, bv), true
		case IRFloat:
			return cmp.Compare(float64(av), float64(bv)), true
		}
	case IRFloat:
		switch bv := b.(type) {
		case IRInt:
			return cmp.Compare(float64(av), float64(bv)), true
		case IRFloat:
			return cmp.Compare(av, bv), true
		}
	case IRString:
		if bv, ok := b.(IRString); ok {
			return strings.Compare(string(av), string(bv)), true
		}
	case IRKeyPath:
		if bv, ok := b.(IRKeyPath); ok {
			return strings.Compare(string(av), string(bv)), true
		}
	case IRBool:
		if bv, ok := b.(IRBool); ok {
			switch {
			case av == bv:
				return 0, true
			case !bool(av):
				return -1, true
			default:
				return 1, true
			}
		}
	case IRTime:
		if bv, ok := b.(IRTime); ok {
			return av.Time().Compare(bv.Time()), true
		}
	}
	return 0, false
}

// Equal reports whether two values are equal.
// Scalars use Compare (so IRInt(1) equals IRFloat(1)); arrays and objects
// compare element-wise. Two nulls are equal.
func Equal(a, b IRValue) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}

	switch av := a.(type) {
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	}

	c, ok := Compare(a, b)
	return ok && c == 0
}

// SortCompare is a total order used for sorting records.
// Nulls sort first, then numbers, then strings, matching SQLite's storage
// class order. Incomparable kinds order by sortRank so the result is always
// deterministic.
func SortCompare(a, b IRValue) int {
	aNull, bNull := IsNull(a), IsNull(b)
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return -1
	case bNull:
		return 1
	}
	if c, ok := Compare(a, b); ok {
		return c
	}
	return cmp.Compare(sortRank(a.Kind()), sortRank(b.Kind()))
}

var sortRanks = map[Kind]int{
	KindNull:    0,
	KindInt:     1,
	KindFloat:   1,
	KindString:  2,
	KindKeyPath: 3,
	KindBool:    4,
	KindTime:    5,
	KindArray:   6,
	KindObject:  7,
}

func sortRank(k Kind) int {
	return sortRanks[k]
}
