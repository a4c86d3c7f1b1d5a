package querysql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor a Compiler emits.
type Dialect int

const (
	// SQLite targets SQLite connections with the qk_fold and regexp
	// functions registered (see package store).
	SQLite Dialect = iota

	// SQLiteBasic targets SQLite connections without custom functions.
	// Case folding is ASCII only; diacritic folding and MATCHES are
	// rejected as unsupported.
	SQLiteBasic

	// Postgres targets PostgreSQL with the unaccent extension available.
	Postgres
)

var dialectNames = [...]string{
	SQLite:      "sqlite",
	SQLiteBasic: "sqlite-basic",
	Postgres:    "postgres",
}

func (d Dialect) String() string {
	if d < 0 || int(d) >= len(dialectNames) {
		return "unknown"
	}
	return dialectNames[d]
}

// ParseDialect is the inverse of Dialect.String.
func ParseDialect(s string) (Dialect, error) {
	for i, n := range dialectNames {
		if n == strings.ToLower(strings.TrimSpace(s)) {
			return Dialect(i), nil
		}
	}
	return 0, fmt.Errorf("unknown SQL dialect %q", s)
}

// placeholder renders the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// rowKey is the hidden physical row identifier used as the final sort key
// and to address windowed deletes.
func (d Dialect) rowKey() string {
	if d == Postgres {
		return "ctid"
	}
	return "rowid"
}

// TimeLayout is how SQLite dialects store times: UTC with a fixed nine
// digit fraction, so text order is chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// QuoteIdent quotes a table or column name.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var jsonSegment = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// jsonExtract renders access to a value nested inside a JSON column.
// ok is false when a segment cannot be expressed as a JSON path literal.
func (d Dialect) jsonExtract(column string, nested []string) (string, bool) {
	for _, seg := range nested {
		if !jsonSegment.MatchString(seg) {
			return "", false
		}
	}
	if d == Postgres {
		return fmt.Sprintf("(%s #>> '{%s}')", column, strings.Join(nested, ",")), true
	}
	return fmt.Sprintf("json_extract(%s, '$.%s')", column, strings.Join(nested, ".")), true
}

// globEscape makes s match itself literally inside a GLOB pattern.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// likeGlob converts a LIKE pattern ('*' any run, '?' one character) into a
// GLOB pattern, where the only other metacharacter is '['.
func likeGlob(pattern string) string {
	return strings.ReplaceAll(pattern, "[", "[[]")
}

// likeEscape makes s match itself literally inside a SQL LIKE pattern
// with ESCAPE '\'.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// likeSQL converts a LIKE pattern ('*' and '?') into a SQL LIKE pattern
// ('%' and '_') with ESCAPE '\'.
func likeSQL(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
