package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindNull valueKind = iota
	kindText
	kindNumber
)

// Value is one cell of a tabular dataset: null, text, or a number.
type Value struct {
	kind valueKind
	text string
	num  float64
}

// Null returns the null marker.
func Null() Value { return Value{} }

// Text wraps a string cell.
func Text(s string) Value { return Value{kind: kindText, text: s} }

// Number wraps a numeric cell.
func Number(f float64) Value { return Value{kind: kindNumber, num: f} }

// IsNull reports whether v is the null marker.
func (v Value) IsNull() bool { return v.kind == kindNull }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.kind == kindNumber }

// String stringifies the cell. Null becomes the empty string and numbers use
// the shortest representation that round-trips.
func (v Value) String() string {
	switch v.kind {
	case kindText:
		return v.text
	case kindNumber:
		if math.IsNaN(v.num) {
			return "nan"
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

// Float returns the numeric value. Text is parsed leniently and anything that
// does not parse counts as 0.
func (v Value) Float() float64 {
	switch v.kind {
	case kindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return 0
		}
		return v.num
	case kindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

// Blank reports whether the cell is null or whitespace only.
func (v Value) Blank() bool {
	return v.IsNull() || strings.TrimSpace(v.String()) == ""
}

// MarshalJSON renders null, string or number.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindText:
		return json.Marshal(v.text)
	case kindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	}
	return []byte("null"), nil
}

// Table is a dataset of rows addressed by column header.
type Table struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// NewTable creates an empty table with the given headers.
func NewTable(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds a row, padding with nulls or truncating to the column count.
func (t *Table) Append(row ...Value) {
	r := make([]Value, len(t.Columns))
	copy(r, row)
	t.Rows = append(t.Rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of header, or -1.
func (t *Table) ColumnIndex(header string) int {
	for i, c := range t.Columns {
		if c == header {
			return i
		}
	}
	return -1
}

// FieldIndex resolves a canonical field to a column position through the
// mapping. It returns -1 when the field is unmapped or the mapped header is
// not present in the table.
func (t *Table) FieldIndex(m *ColumnMapping, f CanonicalField) int {
	h, ok := m.Header(f)
	if !ok {
		return -1
	}
	return t.ColumnIndex(h)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := NewTable(t.Columns)
	c.Rows = make([][]Value, len(t.Rows))
	for i, r := range t.Rows {
		c.Rows[i] = append([]Value(nil), r...)
	}
	return c
}

// Head returns a copy holding at most the first n rows.
func (t *Table) Head(n int) *Table {
	c := NewTable(t.Columns)
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	for _, r := range t.Rows[:n] {
		c.Rows = append(c.Rows, append([]Value(nil), r...))
	}
	return c
}
