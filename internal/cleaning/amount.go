package cleaning

import (
	"strings"

	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/shopspring/decimal"
)

// currencyMarkers are removed wherever they occur. "Rs." must precede "Rs".
var currencyMarkers = []string{"₹", "$", "£", "€", "Rs.", "Rs", "INR", "USD"}

// ParseAmount converts a cell into a number. Numbers pass through, text is
// parsed with ParseAmountString and null becomes 0.
func ParseAmount(v domain.Value) float64 {
	if v.IsNull() {
		return 0
	}
	if v.IsNumber() {
		return v.Float()
	}
	return ParseAmountString(v.String())
}

// ParseAmountString parses currency formatted text such as "₹1,23,456.50",
// "Rs. 500" or "(1,200)". Anything that cannot be parsed yields 0.
func ParseAmountString(raw string) float64 {
	s := strings.TrimSpace(raw)
	if isNullToken(s) {
		return 0
	}

	for _, marker := range currencyMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.TrimSpace(s[1:len(s)-1])
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
