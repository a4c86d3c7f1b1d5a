package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/querykit/internal/queryir"
)

// Query is a compiled fetch: the clauses every statement is assembled
// from, plus the descriptor and fetch it came from. It implements
// queryset.FetchSpec.
type Query struct {
	Dialect Dialect
	Desc    queryir.Descriptor
	Fetch   queryir.Fetch

	// Table is the quoted table name.
	Table string

	// Where is the filter condition without the WHERE keyword; empty when
	// the fetch has no predicate.
	Where string

	// Args are the bound values of Where, in placeholder order.
	Args []any

	// OrderBy is never empty: it always ends with the row key.
	OrderBy string
}

// Statement is SQL text with its arguments.
type Statement struct {
	SQL  string
	Args []any
}

func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.SQL
	}
	return fmt.Sprintf("%s -- args: %v", s.SQL, s.Args)
}

func (q *Query) whereClause() string {
	if q.Where == "" {
		return ""
	}
	return " WHERE " + q.Where
}

func (q *Query) limitClause() string {
	r := q.Fetch.Range
	switch {
	case r.IsUnbounded():
		return ""
	case !r.HasLimit && q.Dialect == Postgres:
		return " OFFSET " + strconv.Itoa(r.Offset)
	case !r.HasLimit:
		return " LIMIT -1 OFFSET " + strconv.Itoa(r.Offset)
	case r.Offset == 0:
		return " LIMIT " + strconv.Itoa(r.Limit)
	}
	return " LIMIT " + strconv.Itoa(r.Limit) + " OFFSET " + strconv.Itoa(r.Offset)
}

// selection is the ordered, windowed SELECT of cols.
func (q *Query) selection(cols string) string {
	return "SELECT " + cols + " FROM " + q.Table + q.whereClause() + " ORDER BY " + q.OrderBy + q.limitClause()
}

// Select returns the statement reading columns (quoted by the caller) of
// the selected rows in order. No columns selects "*".
func (q *Query) Select(columns ...string) Statement {
	cols := "*"
	if len(columns) > 0 {
		cols = strings.Join(columns, ", ")
	}
	return Statement{SQL: q.selection(cols), Args: q.Args}
}

// Count returns the statement counting the selected rows, window included.
func (q *Query) Count() Statement {
	if q.Fetch.Range.IsUnbounded() {
		return Statement{SQL: "SELECT COUNT(*) FROM " + q.Table + q.whereClause(), Args: q.Args}
	}
	return Statement{SQL: "SELECT COUNT(*) FROM (" + q.selection("1") + ") AS w", Args: q.Args}
}

// Delete returns the statement removing the selected rows. A windowed
// delete addresses rows through the dialect's row key.
func (q *Query) Delete() Statement {
	if q.Fetch.Range.IsUnbounded() {
		return Statement{SQL: "DELETE FROM " + q.Table + q.whereClause(), Args: q.Args}
	}
	key := q.Dialect.rowKey()
	return Statement{
		SQL:  "DELETE FROM " + q.Table + " WHERE " + key + " IN (" + q.selection(key) + ")",
		Args: q.Args,
	}
}

// Explain renders the SELECT statement with its arguments.
func (q *Query) Explain() string {
	return q.Dialect.String() + ": " + q.Select().String()
}
