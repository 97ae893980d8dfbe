package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/krishnaenterprise/CYBER/internal/domain"
)

// WriteCSV writes the header row and one row per account.
func WriteCSV(w io.Writer, accounts []domain.AggregatedAccount) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	for _, a := range accounts {
		if err := cw.Write(record(a)); err != nil {
			return fmt.Errorf("WriteCSV: account %s: %w", a.AccountNumber, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}
