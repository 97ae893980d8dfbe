package validation

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/krishnaenterprise/CYBER/internal/cleaning"
	"github.com/krishnaenterprise/CYBER/internal/domain"
)

const (
	AccountNumberMinDigits = 9
	AccountNumberMaxDigits = 18
	IFSCCodeLength         = 11
)

// QualityReport summarises row-level data quality. It never blocks
// processing.
type QualityReport struct {
	TotalRows int `json:"total_rows"`

	ValidAccountNumbers   int `json:"valid_account_numbers"`
	MissingAccountNumbers int `json:"missing_account_numbers"`
	InvalidAccountNumbers int `json:"invalid_account_numbers"`

	ValidIFSCCodes   int `json:"valid_ifsc_codes"`
	MissingIFSCCodes int `json:"missing_ifsc_codes"`
	InvalidIFSCCodes int `json:"invalid_ifsc_codes"`

	MissingAddresses int `json:"missing_addresses"`

	ValidAmounts   int `json:"valid_amounts"`
	InvalidAmounts int `json:"invalid_amounts"`

	DuplicateAcknowledgements []string `json:"duplicate_acknowledgements"`

	AccountValidityRate float64 `json:"account_number_validity_rate"`
	IFSCValidityRate    float64 `json:"ifsc_validity_rate"`
	AmountValidityRate  float64 `json:"amount_validity_rate"`
	CompletenessRate    float64 `json:"data_completeness_rate"`

	Warnings []ErrorResponse `json:"warnings"`
}

// ValidAccountNumber reports whether s holds 9 to 18 digits once every
// non-digit is ignored.
func ValidAccountNumber(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= AccountNumberMinDigits && digits <= AccountNumberMaxDigits
}

// ValidIFSC reports whether s is exactly 11 letters and digits.
func ValidIFSC(s string) bool {
	s = strings.TrimSpace(s)
	if len([]rune(s)) != IFSCCodeLength {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Assess inspects a cleaned table. Fields that are not mapped count as
// missing in every row.
func Assess(t *domain.Table, m *domain.ColumnMapping) QualityReport {
	r := QualityReport{
		TotalRows:                 t.Len(),
		DuplicateAcknowledgements: []string{},
		Warnings:                  []ErrorResponse{},
	}

	acct := t.FieldIndex(m, domain.BankAccountNumber)
	ifsc := t.FieldIndex(m, domain.IFSCCode)
	addr := t.FieldIndex(m, domain.Address)
	amt := t.FieldIndex(m, domain.Amount)
	ack := t.FieldIndex(m, domain.AcknowledgementNumber)

	var tracked []int
	for _, f := range domain.AllFields() {
		if i := t.FieldIndex(m, f); i >= 0 {
			tracked = append(tracked, i)
		}
	}

	ackCounts := make(map[string]int)
	var ackOrder []string
	filled := 0

	for _, row := range t.Rows {
		switch v := cell(row, acct); {
		case cleaning.IsMissingAccount(v):
			r.MissingAccountNumbers++
		case ValidAccountNumber(v.String()):
			r.ValidAccountNumbers++
		default:
			r.InvalidAccountNumbers++
		}

		switch v := cell(row, ifsc); {
		case missing(v):
			r.MissingIFSCCodes++
		case ValidIFSC(v.String()):
			r.ValidIFSCCodes++
		default:
			r.InvalidIFSCCodes++
		}

		if missing(cell(row, addr)) {
			r.MissingAddresses++
		}

		if v := cell(row, amt); !v.IsNull() && cleaning.ParseAmount(v) > 0 {
			r.ValidAmounts++
		} else {
			r.InvalidAmounts++
		}

		if v := cell(row, ack); !missing(v) {
			key := strings.TrimSpace(v.String())
			if ackCounts[key] == 0 {
				ackOrder = append(ackOrder, key)
			}
			ackCounts[key]++
		}

		for _, i := range tracked {
			if !missing(cell(row, i)) {
				filled++
			}
		}
	}

	for _, a := range ackOrder {
		if ackCounts[a] > 1 {
			r.DuplicateAcknowledgements = append(r.DuplicateAcknowledgements, a)
		}
	}

	r.AccountValidityRate = rate(r.ValidAccountNumbers, r.TotalRows)
	r.IFSCValidityRate = rate(r.ValidIFSCCodes, r.TotalRows)
	r.AmountValidityRate = rate(r.ValidAmounts, r.TotalRows)
	r.CompletenessRate = rate(filled, r.TotalRows*len(tracked))

	r.Warnings = append(r.Warnings, rowWarnings(r)...)
	r.Warnings = append(r.Warnings, AmbiguityWarnings(m)...)
	return r
}

func rowWarnings(r QualityReport) []ErrorResponse {
	var out []ErrorResponse
	add := func(code Code, n int) {
		if n > 0 {
			out = append(out, countResponse(code, n))
		}
	}
	add(CodeInvalidAccount, r.InvalidAccountNumbers)
	add(CodeMissingIFSC, r.MissingIFSCCodes)
	add(CodeInvalidIFSCFormat, r.InvalidIFSCCodes)
	add(CodeMissingAddress, r.MissingAddresses)
	add(CodeInvalidAmount, r.InvalidAmounts)
	add(CodeDuplicateAck, len(r.DuplicateAcknowledgements))
	return out
}

// AmbiguityWarnings returns one warning per header that matched several
// fields, ordered by header.
func AmbiguityWarnings(m *domain.ColumnMapping) []ErrorResponse {
	if m == nil {
		return nil
	}
	headers := make([]string, 0, len(m.AmbiguousMappings))
	for h := range m.AmbiguousMappings {
		headers = append(headers, h)
	}
	slices.Sort(headers)

	var out []ErrorResponse
	for _, h := range headers {
		w := newResponse(CodeAmbiguousColumn, h)
		w.Fields = slices.Clone(m.AmbiguousMappings[h])
		out = append(out, w)
	}
	return out
}

func cell(row []domain.Value, i int) domain.Value {
	if i < 0 || i >= len(row) {
		return domain.Null()
	}
	return row[i]
}

func missing(v domain.Value) bool {
	if v.IsNull() {
		return true
	}
	s := strings.TrimSpace(v.String())
	return s == "" || s == "nan" || s == "None"
}

// rate is a percentage rounded to two decimals. An empty denominator is
// 100%: nothing is missing.
func rate(n, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}
