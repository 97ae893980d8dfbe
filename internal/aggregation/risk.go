package aggregation

import "math"

const (
	transactionSaturation = 100.0
	amountSaturation      = 10_000_000.0

	transactionWeight = 0.4
	amountWeight      = 0.6
)

// RiskScore weights transaction volume and amount, each saturating at its
// cap, into a score between 0 and 100 rounded to two decimals.
func RiskScore(totalTransactions int, totalAmount float64) float64 {
	txn := component(float64(totalTransactions) / transactionSaturation)
	amt := component(totalAmount / amountSaturation)
	return round2(transactionWeight*txn + amountWeight*amt)
}

// component clamps a ratio to [0,1] and scales it to a percentage.
func component(ratio float64) float64 {
	if math.IsNaN(ratio) || ratio < 0 {
		return 0
	}
	return math.Min(ratio, 1) * 100
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
