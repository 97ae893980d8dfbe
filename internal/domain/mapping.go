package domain

import (
	"fmt"
	"maps"
	"slices"
)

// ColumnMapping records which raw spreadsheet header serves each canonical
// field. An empty header means the field is unassigned.
type ColumnMapping struct {
	SerialNumber          string `json:"serial_number,omitempty"`
	AcknowledgementNumber string `json:"acknowledgement_number,omitempty"`
	BankAccountNumber     string `json:"bank_account_number,omitempty"`
	IFSCCode              string `json:"ifsc_code,omitempty"`
	Address               string `json:"address,omitempty"`
	Amount                string `json:"amount,omitempty"`
	DisputedAmount        string `json:"disputed_amount,omitempty"`
	BankName              string `json:"bank_name,omitempty"`
	District              string `json:"district,omitempty"`
	State                 string `json:"state,omitempty"`

	// ConfidenceScores holds the score of the header currently assigned to
	// each field.
	ConfidenceScores map[CanonicalField]float64 `json:"confidence_scores"`

	// AmbiguousMappings lists, per raw header, every field it cleared the
	// match threshold for when there was more than one.
	AmbiguousMappings map[string][]CanonicalField `json:"ambiguous_mappings"`
}

// NewColumnMapping returns an empty mapping with initialized maps.
func NewColumnMapping() *ColumnMapping {
	return &ColumnMapping{
		ConfidenceScores:  make(map[CanonicalField]float64),
		AmbiguousMappings: make(map[string][]CanonicalField),
	}
}

// slot returns a pointer to the header field backing f.
func (m *ColumnMapping) slot(f CanonicalField) *string {
	switch f {
	case SerialNumber:
		return &m.SerialNumber
	case AcknowledgementNumber:
		return &m.AcknowledgementNumber
	case BankAccountNumber:
		return &m.BankAccountNumber
	case IFSCCode:
		return &m.IFSCCode
	case Address:
		return &m.Address
	case Amount:
		return &m.Amount
	case DisputedAmount:
		return &m.DisputedAmount
	case BankName:
		return &m.BankName
	case District:
		return &m.District
	case State:
		return &m.State
	}
	return nil
}

// Header returns the raw header assigned to f.
func (m *ColumnMapping) Header(f CanonicalField) (string, bool) {
	if m == nil {
		return "", false
	}
	p := m.slot(f)
	if p == nil || *p == "" {
		return "", false
	}
	return *p, true
}

// SetHeader assigns header to f. An empty header clears the field.
func (m *ColumnMapping) SetHeader(f CanonicalField, header string) {
	if p := m.slot(f); p != nil {
		*p = header
	}
}

// Clear unassigns f and drops its confidence score.
func (m *ColumnMapping) Clear(f CanonicalField) {
	m.SetHeader(f, "")
	delete(m.ConfidenceScores, f)
}

// Assigned returns the fields that have a header, in canonical order.
func (m *ColumnMapping) Assigned() []CanonicalField {
	var out []CanonicalField
	for _, f := range AllFields() {
		if _, ok := m.Header(f); ok {
			out = append(out, f)
		}
	}
	return out
}

// FieldFor returns the field a raw header is assigned to.
func (m *ColumnMapping) FieldFor(header string) (CanonicalField, bool) {
	for _, f := range AllFields() {
		if h, ok := m.Header(f); ok && h == header {
			return f, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (m *ColumnMapping) Clone() *ColumnMapping {
	c := *m
	c.ConfidenceScores = maps.Clone(m.ConfidenceScores)
	if c.ConfidenceScores == nil {
		c.ConfidenceScores = make(map[CanonicalField]float64)
	}
	c.AmbiguousMappings = make(map[string][]CanonicalField, len(m.AmbiguousMappings))
	for h, fields := range m.AmbiguousMappings {
		c.AmbiguousMappings[h] = slices.Clone(fields)
	}
	return &c
}

// ApplyOverrides returns a copy of m with user edits applied. An empty header
// clears the field; a chosen header is recorded with confidence 1.0 and its
// ambiguity annotation is dropped. A field that was not overridden loses a
// header the user moved elsewhere. Overrides naming one header for two
// fields are rejected.
func (m *ColumnMapping) ApplyOverrides(overrides map[CanonicalField]string) (*ColumnMapping, error) {
	for f := range overrides {
		if !f.Valid() {
			return nil, fmt.Errorf("ApplyOverrides: unknown field %q", f)
		}
	}

	out := m.Clone()
	for _, f := range AllFields() {
		header, ok := overrides[f]
		if !ok {
			continue
		}
		if header == "" {
			out.Clear(f)
			continue
		}
		for _, g := range out.Assigned() {
			if _, overridden := overrides[g]; overridden || g == f {
				continue
			}
			if h, _ := out.Header(g); h == header {
				out.Clear(g)
			}
		}
		out.SetHeader(f, header)
		out.ConfidenceScores[f] = 1.0
		delete(out.AmbiguousMappings, header)
	}

	seen := make(map[string]CanonicalField)
	for _, f := range out.Assigned() {
		h, _ := out.Header(f)
		if prev, dup := seen[h]; dup {
			return nil, fmt.Errorf("ApplyOverrides: header %q assigned to both %s and %s", h, prev, f)
		}
		seen[h] = f
	}
	return out, nil
}
