// Package aggregation consolidates cleaned transaction rows into one fraud
// profile per bank account.
package aggregation

import (
	"strings"

	"github.com/krishnaenterprise/CYBER/internal/cleaning"
	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/shopspring/decimal"
)

// modeFields are the categorical fields reduced to their most frequent value.
var modeFields = []domain.CanonicalField{
	domain.BankName,
	domain.IFSCCode,
	domain.Address,
	domain.District,
	domain.State,
}

// group accumulates one account's rows.
type group struct {
	account  string
	count    int
	amount   decimal.Decimal
	disputed decimal.Decimal
	modes    []modeCounter
	acks     []string
	seenAcks map[string]struct{}
}

// modeCounter tracks value frequencies in first-seen order so ties resolve
// to the earliest value.
type modeCounter struct {
	order  []string
	counts map[string]int
}

func (c *modeCounter) add(v string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[v]; !ok {
		c.order = append(c.order, v)
	}
	c.counts[v]++
}

func (c *modeCounter) mode() string {
	best, bestCount := "", 0
	for _, v := range c.order {
		if n := c.counts[v]; n > bestCount {
			best, bestCount = v, n
		}
	}
	return best
}

// columnIndex holds resolved column positions, -1 when unmapped.
type columnIndex struct {
	account, ack, amount, disputed int
	modes                          []int
}

func indexColumns(t *domain.Table, m *domain.ColumnMapping) columnIndex {
	c := columnIndex{
		account:  t.FieldIndex(m, domain.BankAccountNumber),
		ack:      t.FieldIndex(m, domain.AcknowledgementNumber),
		amount:   t.FieldIndex(m, domain.Amount),
		disputed: t.FieldIndex(m, domain.DisputedAmount),
	}
	for _, f := range modeFields {
		c.modes = append(c.modes, t.FieldIndex(m, f))
	}
	return c
}

// cell returns row[i], or null when the column is unmapped or the row is
// shorter than the header.
func cell(row []domain.Value, i int) domain.Value {
	if i < 0 || i >= len(row) {
		return domain.Null()
	}
	return row[i]
}

// Aggregate groups rows by account number in a single pass. Rows without an
// account number are skipped. The result follows first-seen account order;
// use Sort for the reporting order. When the account column is unmapped or
// absent the result is empty.
func Aggregate(t *domain.Table, m *domain.ColumnMapping) []domain.AggregatedAccount {
	cols := indexColumns(t, m)
	if cols.account < 0 {
		return []domain.AggregatedAccount{}
	}

	index := make(map[string]*group)
	var groups []*group

	for _, row := range t.Rows {
		acct := cell(row, cols.account)
		if cleaning.IsMissingAccount(acct) {
			continue
		}
		key := acct.String()

		g, ok := index[key]
		if !ok {
			g = &group{account: key, modes: make([]modeCounter, len(modeFields)), seenAcks: make(map[string]struct{})}
			index[key] = g
			groups = append(groups, g)
		}

		g.count++
		g.amount = g.amount.Add(decimal.NewFromFloat(cell(row, cols.amount).Float()))
		g.disputed = g.disputed.Add(decimal.NewFromFloat(cell(row, cols.disputed).Float()))
		for i, idx := range cols.modes {
			if v := cell(row, idx); !v.Blank() {
				g.modes[i].add(strings.TrimSpace(v.String()))
			}
		}
		if v := cell(row, cols.ack); !v.Blank() {
			ack := strings.TrimSpace(v.String())
			if _, dup := g.seenAcks[ack]; !dup {
				g.seenAcks[ack] = struct{}{}
				g.acks = append(g.acks, ack)
			}
		}
	}

	out := make([]domain.AggregatedAccount, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.profile())
	}
	return out
}

func (g *group) profile() domain.AggregatedAccount {
	a := domain.AggregatedAccount{
		AccountNumber:          g.account,
		BankName:               g.modes[0].mode(),
		IFSCCode:               g.modes[1].mode(),
		Address:                g.modes[2].mode(),
		District:               g.modes[3].mode(),
		State:                  g.modes[4].mode(),
		TotalTransactions:      g.count,
		AcknowledgementNumbers: strings.Join(g.acks, ";"),
		TotalAmount:            g.amount.InexactFloat64(),
		TotalDisputedAmount:    g.disputed.InexactFloat64(),
	}
	a.RiskScore = RiskScore(a.TotalTransactions, a.TotalAmount)
	return a
}

// Run aggregates and sorts in one call.
func Run(t *domain.Table, m *domain.ColumnMapping) []domain.AggregatedAccount {
	return Sort(Aggregate(t, m))
}
