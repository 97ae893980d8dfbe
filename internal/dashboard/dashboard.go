// Package dashboard computes summary views over aggregated accounts.
package dashboard

import (
	"cmp"
	"slices"
	"strings"

	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// DefaultTopN is the number of accounts shown in summaries.
	DefaultTopN = 10

	// HighRiskThreshold is the risk score from which an account counts as
	// high risk.
	HighRiskThreshold = 50.0
)

// Statistics summarises a set of accounts.
type Statistics struct {
	UniqueAccounts          int                        `json:"unique_accounts"`
	TotalTransactions       int                        `json:"total_transactions"`
	TotalAmount             float64                    `json:"total_fraud_amount"`
	TotalDisputedAmount     float64                    `json:"total_disputed_amount"`
	AverageAmountPerAccount float64                    `json:"average_amount_per_account"`
	MaxRiskScore            float64                    `json:"max_risk_score"`
	HighRiskAccounts        int                        `json:"high_risk_accounts"`
	TopAccounts             []domain.AggregatedAccount `json:"top_accounts_by_amount"`
}

// ComputeStatistics totals the accounts. TopAccounts keeps the first topN
// accounts in input order, which for sorted input is the highest amounts.
func ComputeStatistics(accounts []domain.AggregatedAccount, topN int) Statistics {
	if topN <= 0 {
		topN = DefaultTopN
	}

	s := Statistics{
		UniqueAccounts: len(accounts),
		TopAccounts:    slices.Clone(accounts[:min(topN, len(accounts))]),
	}
	if s.TopAccounts == nil {
		s.TopAccounts = []domain.AggregatedAccount{}
	}

	total, disputed := decimal.Zero, decimal.Zero
	for _, a := range accounts {
		s.TotalTransactions += a.TotalTransactions
		total = total.Add(decimal.NewFromFloat(a.TotalAmount))
		disputed = disputed.Add(decimal.NewFromFloat(a.TotalDisputedAmount))
		s.MaxRiskScore = max(s.MaxRiskScore, a.RiskScore)
		if a.RiskScore >= HighRiskThreshold {
			s.HighRiskAccounts++
		}
	}

	s.TotalAmount = total.InexactFloat64()
	s.TotalDisputedAmount = disputed.InexactFloat64()
	if len(accounts) > 0 {
		s.AverageAmountPerAccount = total.Div(decimal.NewFromInt(int64(len(accounts)))).InexactFloat64()
	}
	return s
}

// Filter narrows an account list. Zero values disable a criterion.
type Filter struct {
	Query           string  `json:"q,omitempty"`
	MinTransactions int     `json:"min_transactions,omitempty"`
	MinAmount       float64 `json:"min_amount,omitempty"`
	MinRiskScore    float64 `json:"min_risk_score,omitempty"`
	Bank            string  `json:"bank,omitempty"`
	State           string  `json:"state,omitempty"`
	District        string  `json:"district,omitempty"`
}

// Match reports whether a satisfies every set criterion. Query is a
// substring of the account number; bank, state and district compare
// case-insensitively.
func (f Filter) Match(a domain.AggregatedAccount) bool {
	if q := strings.TrimSpace(f.Query); q != "" && !strings.Contains(a.AccountNumber, q) {
		return false
	}
	if f.MinTransactions > 0 && a.TotalTransactions < f.MinTransactions {
		return false
	}
	if f.MinAmount > 0 && a.TotalAmount < f.MinAmount {
		return false
	}
	if f.MinRiskScore > 0 && a.RiskScore < f.MinRiskScore {
		return false
	}
	return equalFold(f.Bank, a.BankName) &&
		equalFold(f.State, a.State) &&
		equalFold(f.District, a.District)
}

func equalFold(want, got string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(want, strings.TrimSpace(got))
}

// Apply returns the matching accounts in their original order.
func (f Filter) Apply(accounts []domain.AggregatedAccount) []domain.AggregatedAccount {
	out := make([]domain.AggregatedAccount, 0, len(accounts))
	for _, a := range accounts {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

// Page is one slice of a longer list.
type Page struct {
	Items      []domain.AggregatedAccount `json:"items"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"page_size"`
	TotalItems int                        `json:"total_items"`
	TotalPages int                        `json:"total_pages"`
}

// Paginate returns page (1-based) of size items. Out of range pages are
// empty; page and size below 1 are raised to 1 and DefaultTopN.
func Paginate(accounts []domain.AggregatedAccount, page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultTopN
	}

	p := Page{
		Page:       page,
		PageSize:   size,
		TotalItems: len(accounts),
		TotalPages: (len(accounts) + size - 1) / size,
		Items:      []domain.AggregatedAccount{},
	}
	start := (page - 1) * size
	if start >= len(accounts) {
		return p
	}
	end := min(start+size, len(accounts))
	p.Items = slices.Clone(accounts[start:end])
	return p
}

// BankSummary totals the accounts held at one bank.
type BankSummary struct {
	BankName          string  `json:"bank_name"`
	Accounts          int     `json:"accounts"`
	TotalTransactions int     `json:"total_transactions"`
	TotalAmount       float64 `json:"total_amount"`
}

// BankBreakdown groups accounts by bank name, largest amount first. Accounts
// without a bank are grouped under "Unknown".
func BankBreakdown(accounts []domain.AggregatedAccount) []BankSummary {
	index := make(map[string]int)
	var out []BankSummary
	var sums []decimal.Decimal

	for _, a := range accounts {
		name := strings.TrimSpace(a.BankName)
		if name == "" {
			name = "Unknown"
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, BankSummary{BankName: name})
			sums = append(sums, decimal.Zero)
		}
		out[i].Accounts++
		out[i].TotalTransactions += a.TotalTransactions
		sums[i] = sums[i].Add(decimal.NewFromFloat(a.TotalAmount))
	}
	for i := range out {
		out[i].TotalAmount = sums[i].InexactFloat64()
	}

	slices.SortStableFunc(out, func(a, b BankSummary) int {
		return cmp.Compare(b.TotalAmount, a.TotalAmount)
	})
	return out
}

// FlaggedRows returns the cleaned transaction rows that belong to account,
// for drill-down from a profile to its source rows.
func FlaggedRows(t *domain.Table, m *domain.ColumnMapping, account string) *domain.Table {
	out := domain.NewTable(t.Columns)
	col := t.FieldIndex(m, domain.BankAccountNumber)
	if col < 0 {
		return out
	}
	for _, row := range t.Rows {
		if col < len(row) && !row[col].IsNull() && row[col].String() == account {
			out.Rows = append(out.Rows, slices.Clone(row))
		}
	}
	return out
}
