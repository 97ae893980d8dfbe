package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/krishnaenterprise/CYBER/internal/dashboard"
)

// PDFTopAccounts is the number of accounts listed in the PDF report.
const PDFTopAccounts = 20

var pdfAccountColumns = []struct {
	title string
	width float64
	align string
}{
	{"Account Number", 50, "L"},
	{"Bank Name", 45, "L"},
	{"IFSC Code", 32, "L"},
	{"ACK Count", 22, "C"},
	{"Transactions", 26, "C"},
	{"Total Amount", 45, "R"},
	{"Risk Score", 24, "C"},
}

// WritePDF writes a landscape summary: title, statistics, quality metrics
// and the top accounts by amount.
func WritePDF(w io.Writer, d Data) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(12.7, 12.7, 12.7)
	pdf.SetAutoPageBreak(true, 12.7)
	pdf.SetCreationDate(d.generatedAt())
	pdf.SetTitle("Fraud Analysis Report", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Fraud Analysis Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated: "+d.generatedAt().Format("2006-01-02 15:04:05"), "", 1, "L", false, 0, "")
	if d.Filename != "" {
		pdf.CellFormat(0, 6, tr("Input File: "+d.Filename), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	s := dashboard.ComputeStatistics(d.Accounts, PDFTopAccounts)
	heading(pdf, "Summary Statistics")
	metricTable(pdf, [][2]string{
		{"Total Input Rows", strconv.Itoa(d.Stats.InputRows)},
		{"Rows Processed", strconv.Itoa(d.Stats.CleanedRows)},
		{"Rows Without Account Number", strconv.Itoa(d.Stats.RowsWithoutAccount)},
		{"Unique Fraudster Accounts", strconv.Itoa(s.UniqueAccounts)},
		{"Total Fraud Amount", formatRupees(s.TotalAmount)},
		{"Total Disputed Amount", formatRupees(s.TotalDisputedAmount)},
		{"Average Amount per Account", formatRupees(s.AverageAmountPerAccount)},
		{"High Risk Accounts", strconv.Itoa(s.HighRiskAccounts)},
	})

	if q := d.Quality; q != nil {
		heading(pdf, "Data Quality Metrics")
		metricTable(pdf, [][2]string{
			{"Account Number Validity", fmt.Sprintf("%.2f%%", q.AccountValidityRate)},
			{"IFSC Validity", fmt.Sprintf("%.2f%%", q.IFSCValidityRate)},
			{"Amount Validity", fmt.Sprintf("%.2f%%", q.AmountValidityRate)},
			{"Data Completeness", fmt.Sprintf("%.2f%%", q.CompletenessRate)},
			{"Duplicate Acknowledgements", strconv.Itoa(len(q.DuplicateAcknowledgements))},
		})
	}

	heading(pdf, fmt.Sprintf("Top %d Fraudster Accounts by Amount", PDFTopAccounts))
	if len(s.TopAccounts) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, "No accounts to display.", "", 1, "L", false, 0, "")
	} else {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(31, 56, 100)
		pdf.SetTextColor(255, 255, 255)
		for _, c := range pdfAccountColumns {
			pdf.CellFormat(c.width, 8, c.title, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
		for i, a := range s.TopAccounts {
			fill := i%2 == 1
			pdf.SetFillColor(235, 235, 235)
			cells := []string{
				a.AccountNumber,
				truncate(a.BankName, 20),
				a.IFSCCode,
				strconv.Itoa(a.AckCount()),
				strconv.Itoa(a.TotalTransactions),
				formatRupees(a.TotalAmount),
				strconv.FormatFloat(a.RiskScore, 'f', 1, 64),
			}
			for j, c := range pdfAccountColumns {
				pdf.CellFormat(c.width, 7, tr(cells[j]), "1", 0, c.align, fill, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("WritePDF: %w", err)
	}
	return nil
}

func heading(pdf *fpdf.Fpdf, title string) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
}

func metricTable(pdf *fpdf.Fpdf, rows [][2]string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(128, 128, 128)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(75, 7, "Metric", "1", 0, "L", true, 0, "")
	pdf.CellFormat(75, 7, "Value", "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetFillColor(245, 245, 220)
	pdf.SetTextColor(0, 0, 0)
	for _, r := range rows {
		pdf.CellFormat(75, 7, r[0], "1", 0, "L", true, 0, "")
		pdf.CellFormat(75, 7, r[1], "1", 1, "L", true, 0, "")
	}
	pdf.Ln(3)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
