// Package columns maps raw spreadsheet headers onto the canonical fraud
// transaction schema by exact and fuzzy matching.
package columns

import (
	"fmt"
	"strings"
	"unicode"
)

var separators = strings.NewReplacer("_", " ", "-", " ", ".", " ", "/", " ")

// Normalize lowercases a header, turns separators into spaces, drops every
// other symbol and collapses whitespace. Normalize is idempotent.
func Normalize(header string) string {
	s := strings.ToLower(strings.TrimSpace(header))
	s = separators.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeValue normalizes any header value, stringifying non-strings first.
func NormalizeValue(v any) string {
	if s, ok := v.(string); ok {
		return Normalize(s)
	}
	if v == nil {
		return Normalize("None")
	}
	return Normalize(fmt.Sprint(v))
}
