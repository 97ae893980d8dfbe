package store

import (
	"fmt"
	"strings"
)

// DefaultSearchLimit caps cross-dataset searches when no limit is given.
const DefaultSearchLimit = 100

// sortColumns whitelists the columns accounts may be ordered by.
var sortColumns = map[string]bool{
	"position":              true,
	"account_number":        true,
	"bank_name":             true,
	"state":                 true,
	"total_transactions":    true,
	"total_amount":          true,
	"total_disputed_amount": true,
	"risk_score":            true,
	"ack_count":             true,
}

// AccountQuery filters and orders the accounts of one dataset. Zero values
// disable a filter; the default order is the stored rank.
type AccountQuery struct {
	Account         string  `json:"account,omitempty"`
	MinTransactions int     `json:"min_transactions,omitempty"`
	MinAmount       float64 `json:"min_amount,omitempty"`
	Bank            string  `json:"bank,omitempty"`

	SortBy     string `json:"sort_by,omitempty"`
	Descending bool   `json:"descending,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Validate rejects unknown sort columns and negative paging values.
func (q AccountQuery) Validate() error {
	if q.SortBy != "" && !sortColumns[q.SortBy] {
		return fmt.Errorf("invalid sort column %q", q.SortBy)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("limit and offset must not be negative")
	}
	return nil
}

// OrderBy returns the ORDER BY expression. Position breaks ties so paging is
// stable.
func (q AccountQuery) OrderBy() (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	col := q.SortBy
	if col == "" {
		col = "position"
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	if col == "position" {
		return "position " + dir, nil
	}
	return col + " " + dir + ", position ASC", nil
}

// Filter is a dialect-neutral WHERE clause with named parameters.
type Filter struct {
	Clauses []string
	Params  map[string]any
}

// Where builds the filter conditions for datasetID. Placeholders use the
// "@name" form understood by both BigQuery and SQLite.
func (q AccountQuery) Where(datasetID string) Filter {
	f := Filter{
		Clauses: []string{"dataset_id = @dataset_id"},
		Params:  map[string]any{"dataset_id": datasetID},
	}
	if s := strings.TrimSpace(q.Account); s != "" {
		f.Clauses = append(f.Clauses, "INSTR(account_number, @account) > 0")
		f.Params["account"] = s
	}
	if q.MinTransactions > 0 {
		f.Clauses = append(f.Clauses, "total_transactions >= @min_transactions")
		f.Params["min_transactions"] = int64(q.MinTransactions)
	}
	if q.MinAmount > 0 {
		f.Clauses = append(f.Clauses, "total_amount >= @min_amount")
		f.Params["min_amount"] = q.MinAmount
	}
	if s := strings.TrimSpace(q.Bank); s != "" {
		f.Clauses = append(f.Clauses, "LOWER(bank_name) = LOWER(@bank)")
		f.Params["bank"] = s
	}
	return f
}

// SQL joins the clauses with AND.
func (f Filter) SQL() string {
	return strings.Join(f.Clauses, " AND ")
}
