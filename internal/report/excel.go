package report

import (
	"fmt"
	"io"

	"github.com/krishnaenterprise/CYBER/internal/dashboard"
	"github.com/xuri/excelize/v2"
)

const (
	AccountsSheet = "Fraud Analysis"
	SummarySheet  = "Summary"
)

var columnWidths = []float64{24, 40, 10, 24, 14, 40, 16, 16, 12, 16, 18, 10}

// WriteExcel writes a workbook with the accounts sheet and a summary sheet.
// Account numbers are stored as text to keep leading zeros.
func WriteExcel(w io.Writer, d Data) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), AccountsSheet); err != nil {
		return fmt.Errorf("WriteExcel: rename sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F3864"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("WriteExcel: header style: %w", err)
	}

	if err := writeRow(f, AccountsSheet, 1, toAny(Columns)); err != nil {
		return err
	}
	last, _ := excelize.ColumnNumberToName(len(Columns))
	if err := f.SetCellStyle(AccountsSheet, "A1", last+"1", header); err != nil {
		return fmt.Errorf("WriteExcel: apply header style: %w", err)
	}
	for i, a := range d.Accounts {
		if err := writeRow(f, AccountsSheet, i+2, values(a)); err != nil {
			return err
		}
	}
	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(AccountsSheet, col, col, width); err != nil {
			return fmt.Errorf("WriteExcel: column width: %w", err)
		}
	}
	if err := f.SetPanes(AccountsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("WriteExcel: freeze header: %w", err)
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("WriteExcel: summary sheet: %w", err)
	}
	for i, row := range summaryRows(d) {
		if err := writeRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", header); err != nil {
		return fmt.Errorf("WriteExcel: apply summary style: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 32); err != nil {
		return fmt.Errorf("WriteExcel: summary width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("WriteExcel: write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("writeRow: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("writeRow: %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// summaryRows is the metric/value table shared by the Excel and PDF
// reports.
func summaryRows(d Data) [][]any {
	s := dashboard.ComputeStatistics(d.Accounts, dashboard.DefaultTopN)
	rows := [][]any{
		{"Metric", "Value"},
		{"Input File", d.Filename},
		{"Generated", d.generatedAt().Format("2006-01-02 15:04:05")},
		{"Total Input Rows", d.Stats.InputRows},
		{"Rows Processed", d.Stats.CleanedRows},
		{"Rows Without Account Number", d.Stats.RowsWithoutAccount},
		{"Unique Fraudster Accounts", s.UniqueAccounts},
		{"Total Transactions", s.TotalTransactions},
		{"Total Fraud Amount", s.TotalAmount},
		{"Total Disputed Amount", s.TotalDisputedAmount},
		{"Average Amount per Account", s.AverageAmountPerAccount},
		{"High Risk Accounts", s.HighRiskAccounts},
	}
	if q := d.Quality; q != nil {
		rows = append(rows,
			[]any{"Account Number Validity (%)", q.AccountValidityRate},
			[]any{"IFSC Validity (%)", q.IFSCValidityRate},
			[]any{"Amount Validity (%)", q.AmountValidityRate},
			[]any{"Data Completeness (%)", q.CompletenessRate},
			[]any{"Duplicate Acknowledgements", len(q.DuplicateAcknowledgements)},
		)
	}
	return rows
}
