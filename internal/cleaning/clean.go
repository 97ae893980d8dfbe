// Package cleaning normalizes raw transaction rows before aggregation.
package cleaning

import (
	"strings"
	"unicode"

	"github.com/krishnaenterprise/CYBER/internal/domain"
)

// nullTokens are the stringified forms treated as missing cells.
var nullTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"None": {},
}

// accountNullTokens extend nullTokens for the account-number column, which
// spreadsheets export with a wider set of placeholders.
var accountNullTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"NaN":  {},
	"None": {},
	"<NA>": {},
}

func isNullToken(s string) bool {
	_, ok := nullTokens[s]
	return ok
}

// IsMissingAccount reports whether an account-number cell counts as empty.
func IsMissingAccount(v domain.Value) bool {
	if v.IsNull() {
		return true
	}
	_, ok := accountNullTokens[strings.TrimSpace(v.String())]
	return ok
}

// Clean returns a cleaned copy of t. Steps, in order:
//  1. rows whose cells are all null or blank are dropped;
//  2. text cells are trimmed and null tokens become null;
//  3. the account-number column loses whitespace and dashes;
//  4. amount and disputed-amount columns are parsed into numbers, 0 when
//     missing or unparseable.
//
// The input table is not modified.
func Clean(t *domain.Table, m *domain.ColumnMapping) *domain.Table {
	out := domain.NewTable(t.Columns)

	for _, row := range t.Rows {
		if blankRow(row) {
			continue
		}
		r := make([]domain.Value, len(t.Columns))
		for i := range r {
			if i < len(row) {
				r[i] = cleanText(row[i])
			}
		}
		out.Rows = append(out.Rows, r)
	}

	if idx := out.FieldIndex(m, domain.BankAccountNumber); idx >= 0 {
		for _, r := range out.Rows {
			r[idx] = cleanAccount(r[idx])
		}
	}

	for _, f := range []domain.CanonicalField{domain.Amount, domain.DisputedAmount} {
		idx := out.FieldIndex(m, f)
		if idx < 0 {
			continue
		}
		for _, r := range out.Rows {
			r[idx] = domain.Number(ParseAmount(r[idx]))
		}
	}

	return out
}

func blankRow(row []domain.Value) bool {
	for _, v := range row {
		if !v.Blank() {
			return false
		}
	}
	return true
}

func cleanText(v domain.Value) domain.Value {
	if v.IsNull() || v.IsNumber() {
		return v
	}
	s := strings.TrimSpace(v.String())
	if isNullToken(s) {
		return domain.Null()
	}
	return domain.Text(s)
}

// cleanAccount strips whitespace and dashes only. Other punctuation is kept
// so malformed numbers stay visible to the quality checks.
func cleanAccount(v domain.Value) domain.Value {
	if v.IsNull() {
		return v
	}
	s := strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, v.String())
	if _, ok := accountNullTokens[s]; ok {
		return domain.Null()
	}
	return domain.Text(s)
}
