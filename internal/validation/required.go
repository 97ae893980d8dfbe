// Package validation checks that a dataset is processable and reports on the
// quality of its rows.
package validation

import (
	"strings"

	"github.com/krishnaenterprise/CYBER/internal/domain"
)

// MissingRequired returns the required fields the mapping leaves unassigned,
// in canonical order. An empty result means the dataset can be aggregated.
func MissingRequired(m *domain.ColumnMapping) []domain.CanonicalField {
	missing := []domain.CanonicalField{}
	for _, f := range domain.RequiredFields() {
		if _, ok := m.Header(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// MissingColumnsError reports required fields that could not be mapped.
type MissingColumnsError struct {
	Fields []domain.CanonicalField
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return "missing required columns: " + strings.Join(names, ", ")
}

// RequireColumns returns a *MissingColumnsError when a required field is not
// mapped, or when its mapped header is absent from columns. A nil columns
// slice skips the presence check.
func RequireColumns(m *domain.ColumnMapping, columns []string) error {
	var missing []domain.CanonicalField
	for _, f := range domain.RequiredFields() {
		h, ok := m.Header(f)
		if !ok || (columns != nil && !contains(columns, h)) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Fields: missing}
	}
	return nil
}

func contains(columns []string, header string) bool {
	for _, c := range columns {
		if c == header {
			return true
		}
	}
	return false
}
