package aggregation

import (
	"cmp"
	"slices"

	"github.com/krishnaenterprise/CYBER/internal/domain"
)

// Sort returns a new slice ordered by total amount descending, then by
// transaction count descending. Full ties keep their input order.
func Sort(accounts []domain.AggregatedAccount) []domain.AggregatedAccount {
	out := slices.Clone(accounts)
	slices.SortStableFunc(out, compare)
	return out
}

func compare(a, b domain.AggregatedAccount) int {
	if c := cmp.Compare(b.TotalAmount, a.TotalAmount); c != 0 {
		return c
	}
	return cmp.Compare(b.TotalTransactions, a.TotalTransactions)
}
