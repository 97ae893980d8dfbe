package domain

import (
	"strconv"
	"strings"
	"time"
)

// AggregatedAccount is the fraud profile of one bank account, consolidated
// from every transaction row that carries its number.
type AggregatedAccount struct {
	AccountNumber          string  `json:"account_number"`
	BankName               string  `json:"bank_name"`
	IFSCCode               string  `json:"ifsc_code"`
	Address                string  `json:"address"`
	District               string  `json:"district"`
	State                  string  `json:"state"`
	TotalTransactions      int     `json:"total_transactions"`
	AcknowledgementNumbers string  `json:"acknowledgement_numbers"`
	TotalAmount            float64 `json:"total_amount"`
	TotalDisputedAmount    float64 `json:"total_disputed_amount"`
	RiskScore              float64 `json:"risk_score"`
}

// AckCount counts the acknowledgement references. Tokens are split on
// semicolons and commas since a single source cell may hold several.
func (a AggregatedAccount) AckCount() int {
	if strings.TrimSpace(a.AcknowledgementNumbers) == "" {
		return 0
	}
	n := 0
	for _, tok := range strings.FieldsFunc(a.AcknowledgementNumbers, func(r rune) bool {
		return r == ';' || r == ','
	}) {
		if strings.TrimSpace(tok) != "" {
			n++
		}
	}
	return n
}

// ProcessingStats summarises one processing run.
type ProcessingStats struct {
	InputRows           int           `json:"input_rows"`
	CleanedRows         int           `json:"cleaned_rows"`
	RowsWithoutAccount  int           `json:"rows_without_account"`
	UniqueAccounts      int           `json:"unique_accounts"`
	TotalTransactions   int           `json:"total_transactions"`
	TotalAmount         float64       `json:"total_amount"`
	TotalDisputedAmount float64       `json:"total_disputed_amount"`
	Duration            time.Duration `json:"duration_ns"`
}

// FormatAmount renders f in its shortest round-trip form. Integral values
// keep a trailing ".0" so persisted amounts always read as decimals.
func FormatAmount(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nN") {
		s += ".0"
	}
	return s
}
