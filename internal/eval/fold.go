package eval

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/querykit/internal/queryir"
)

var caseFolder = cases.Fold()

// Fold normalizes s for comparison under opts: case folding for
// CaseInsensitive and removal of combining marks for DiacriticInsensitive.
// The result is NFC.
func Fold(s string, opts queryir.Options) string {
	if opts.Has(queryir.DiacriticInsensitive) {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if stripped, _, err := transform.String(t, s); err == nil {
			s = stripped
		}
	} else {
		s = norm.NFC.String(s)
	}
	if opts.Has(queryir.CaseInsensitive) {
		s = caseFolder.String(s)
	}
	return s
}

// likeToRegexp converts a "*"/"?" wildcard pattern to an anchored regular
// expression.
func likeToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexpQuote(r))
		}
	}
	b.WriteByte('$')
	return b.String()
}

func regexpQuote(r rune) string {
	if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
		return `\` + string(r)
	}
	return string(r)
}
