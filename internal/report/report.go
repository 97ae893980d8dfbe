// Package report renders aggregated accounts as downloadable files.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/validation"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format is an output file type.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
	FormatPDF   Format = "pdf"
	FormatAudit Format = "txt"
)

// Columns is the fixed output header, in order.
var Columns = []string{
	"Fraudster Bank Account Number",
	"All Acknowledgement Numbers",
	"ACK Count",
	"Bank Name",
	"IFSC Code",
	"Address",
	"District",
	"State",
	"Total Transactions",
	"Total Amount",
	"Total Disputed Amount",
	"Risk Score",
}

// Data is everything a report can draw on. Only Accounts is required.
type Data struct {
	Accounts    []domain.AggregatedAccount
	Stats       domain.ProcessingStats
	Quality     *validation.QualityReport
	Audit       *AuditTrail
	Filename    string
	GeneratedAt time.Time
}

func (d Data) generatedAt() time.Time {
	if d.GeneratedAt.IsZero() {
		return time.Now()
	}
	return d.GeneratedAt
}

// ParseFormat accepts a format name or file extension, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	case "txt", "audit", "log":
		return FormatAudit, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Render writes d to w in the given format.
func Render(w io.Writer, format Format, d Data) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, d.Accounts)
	case FormatExcel:
		return WriteExcel(w, d)
	case FormatPDF:
		return WritePDF(w, d)
	case FormatAudit:
		return WriteAudit(w, d)
	}
	return fmt.Errorf("Render: unknown report format %q", format)
}

// ContentType returns the MIME type for format.
func ContentType(format Format) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	case FormatAudit:
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// Extension returns the file extension for format, with the leading dot.
func Extension(format Format) string {
	return "." + string(format)
}

// Filename builds the download name for a dataset report.
func Filename(base string, format Format) string {
	base = strings.TrimSpace(base)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = "fraud_analysis"
	}
	if format == FormatAudit {
		return base + "_audit" + Extension(format)
	}
	return base + "_report" + Extension(format)
}

// values returns one output row as typed cells, in Columns order.
func values(a domain.AggregatedAccount) []any {
	return []any{
		a.AccountNumber,
		a.AcknowledgementNumbers,
		a.AckCount(),
		a.BankName,
		a.IFSCCode,
		a.Address,
		a.District,
		a.State,
		a.TotalTransactions,
		a.TotalAmount,
		a.TotalDisputedAmount,
		a.RiskScore,
	}
}

// record returns one output row as text.
func record(a domain.AggregatedAccount) []string {
	return []string{
		a.AccountNumber,
		a.AcknowledgementNumbers,
		strconv.Itoa(a.AckCount()),
		a.BankName,
		a.IFSCCode,
		a.Address,
		a.District,
		a.State,
		strconv.Itoa(a.TotalTransactions),
		domain.FormatAmount(a.TotalAmount),
		domain.FormatAmount(a.TotalDisputedAmount),
		domain.FormatAmount(a.RiskScore),
	}
}

var printer = message.NewPrinter(language.English)

// formatRupees renders an amount with thousands separators. PDF core fonts
// have no rupee glyph, so the prefix is "Rs.".
func formatRupees(f float64) string {
	return printer.Sprintf("Rs. %.2f", f)
}
