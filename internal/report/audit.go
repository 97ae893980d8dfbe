package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// AuditEntry is one recorded processing event.
type AuditEntry struct {
	Time    time.Time `json:"time"`
	Step    string    `json:"step"`
	Message string    `json:"message"`
	Error   bool      `json:"error,omitempty"`
}

// AuditTrail collects the events of one processing run. It is safe for
// concurrent use.
type AuditTrail struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []AuditEntry
}

// NewAuditTrail creates an empty trail stamped with the wall clock.
func NewAuditTrail() *AuditTrail {
	return &AuditTrail{now: time.Now}
}

// NewAuditTrailWithClock creates a trail that takes timestamps from now.
func NewAuditTrailWithClock(now func() time.Time) *AuditTrail {
	return &AuditTrail{now: now}
}

// Record appends an informational entry.
func (t *AuditTrail) Record(step, format string, args ...any) {
	t.add(step, fmt.Sprintf(format, args...), false)
}

// RecordError appends an error entry.
func (t *AuditTrail) RecordError(step string, err error) {
	t.add(step, err.Error(), true)
}

func (t *AuditTrail) add(step, msg string, isErr bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, AuditEntry{Time: t.now(), Step: step, Message: msg, Error: isErr})
}

// Entries returns a copy of every entry in order.
func (t *AuditTrail) Entries() []AuditEntry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]AuditEntry(nil), t.entries...)
}

// Errors returns the messages of error entries.
func (t *AuditTrail) Errors() []string {
	var out []string
	for _, e := range t.Entries() {
		if e.Error {
			out = append(out, fmt.Sprintf("%s: %s", e.Step, e.Message))
		}
	}
	return out
}

var (
	banner    = strings.Repeat("=", 60)
	separator = strings.Repeat("-", 60)
)

// WriteAudit writes the plain text audit log of a run.
func WriteAudit(w io.Writer, d Data) error {
	var b strings.Builder
	section := func(title string) {
		b.WriteString("\n" + separator + "\n" + title + "\n" + separator + "\n")
	}

	b.WriteString(banner + "\nFRAUD ANALYSIS PROCESSING AUDIT LOG\n" + banner + "\n\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", d.generatedAt().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Input File: %s\n", d.Filename)
	fmt.Fprintf(&b, "Rows Processed: %d\n", d.Stats.CleanedRows)

	section("STATISTICS")
	fmt.Fprintf(&b, "Total Input Rows: %d\n", d.Stats.InputRows)
	fmt.Fprintf(&b, "Rows Without Account Number: %d\n", d.Stats.RowsWithoutAccount)
	fmt.Fprintf(&b, "Unique Accounts: %d\n", d.Stats.UniqueAccounts)
	fmt.Fprintf(&b, "Total Transactions: %d\n", d.Stats.TotalTransactions)
	fmt.Fprintf(&b, "Total Amount: %.2f\n", d.Stats.TotalAmount)
	fmt.Fprintf(&b, "Total Disputed Amount: %.2f\n", d.Stats.TotalDisputedAmount)
	fmt.Fprintf(&b, "Processing Time: %s\n", d.Stats.Duration)

	if entries := d.Audit.Entries(); len(entries) > 0 {
		section("PROCESSING STEPS")
		for _, e := range entries {
			fmt.Fprintf(&b, "[%s] %s: %s\n", e.Time.Format("15:04:05"), e.Step, e.Message)
		}
	}

	if d.Quality != nil && len(d.Quality.Warnings) > 0 {
		section("WARNINGS")
		for i, wr := range d.Quality.Warnings {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, wr.Code, wr.Message)
		}
	}

	section("ERRORS ENCOUNTERED")
	if errs := d.Audit.Errors(); len(errs) > 0 {
		for i, e := range errs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, e)
		}
	} else {
		b.WriteString("No errors encountered during processing.\n")
	}

	section("END OF AUDIT LOG")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("WriteAudit: %w", err)
	}
	return nil
}
