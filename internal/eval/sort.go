package eval

import (
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
)

// CompareRecords orders a and b by sort. Nulls sort first in ascending
// order and last in descending order. Returns 0 when every key ties, in
// which case callers keep the backend's natural order.
func CompareRecords(a, b ir.IRObject, sort []queryir.SortDirective) int {
	for _, s := range sort {
		c := ir.SortCompare(Lookup(a, s.Field), Lookup(b, s.Field))
		if s.Direction == queryir.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}
