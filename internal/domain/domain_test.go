package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnMapping_HeaderRoundTrip(t *testing.T) {
	m := NewColumnMapping()
	for _, f := range AllFields() {
		_, ok := m.Header(f)
		assert.False(t, ok, "field %s should start unassigned", f)

		m.SetHeader(f, "col "+string(f))
		h, ok := m.Header(f)
		require.True(t, ok)
		assert.Equal(t, "col "+string(f), h)
	}
	assert.Len(t, m.Assigned(), len(AllFields()))

	m.Clear(Amount)
	_, ok := m.Header(Amount)
	assert.False(t, ok)
}

func TestColumnMapping_CloneIsIndependent(t *testing.T) {
	m := NewColumnMapping()
	m.SetHeader(BankName, "Bank")
	m.ConfidenceScores[BankName] = 0.9
	m.AmbiguousMappings["Bank"] = []CanonicalField{BankName, IFSCCode}

	c := m.Clone()
	c.SetHeader(BankName, "Other")
	c.ConfidenceScores[BankName] = 0.1
	c.AmbiguousMappings["Bank"][0] = State

	assert.Equal(t, "Bank", m.BankName)
	assert.Equal(t, 0.9, m.ConfidenceScores[BankName])
	assert.Equal(t, BankName, m.AmbiguousMappings["Bank"][0])
}

func TestColumnMapping_ApplyOverrides(t *testing.T) {
	base := NewColumnMapping()
	base.SetHeader(BankAccountNumber, "A/C")
	base.ConfidenceScores[BankAccountNumber] = 0.85
	base.SetHeader(Amount, "Amt")
	base.ConfidenceScores[Amount] = 0.82
	base.AmbiguousMappings["Amt"] = []CanonicalField{Amount, DisputedAmount}

	tests := []struct {
		name      string
		overrides map[CanonicalField]string
		wantErr   bool
		check     func(t *testing.T, m *ColumnMapping)
	}{
		{
			name:      "set new header",
			overrides: map[CanonicalField]string{DisputedAmount: "Claim"},
			check: func(t *testing.T, m *ColumnMapping) {
				assert.Equal(t, "Claim", m.DisputedAmount)
				assert.Equal(t, 1.0, m.ConfidenceScores[DisputedAmount])
			},
		},
		{
			name:      "clear field",
			overrides: map[CanonicalField]string{Amount: ""},
			check: func(t *testing.T, m *ColumnMapping) {
				_, ok := m.Header(Amount)
				assert.False(t, ok)
				_, ok = m.ConfidenceScores[Amount]
				assert.False(t, ok)
			},
		},
		{
			name:      "moving a header releases the old field",
			overrides: map[CanonicalField]string{DisputedAmount: "Amt"},
			check: func(t *testing.T, m *ColumnMapping) {
				assert.Equal(t, "Amt", m.DisputedAmount)
				assert.Empty(t, m.Amount)
				assert.NotContains(t, m.AmbiguousMappings, "Amt")
			},
		},
		{
			name:      "same header for two overridden fields",
			overrides: map[CanonicalField]string{BankName: "X", State: "X"},
			wantErr:   true,
		},
		{
			name:      "unknown field",
			overrides: map[CanonicalField]string{"nope": "X"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.ApplyOverrides(tt.overrides)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
			assert.Equal(t, "A/C", base.BankAccountNumber, "base must not change")
			assert.Equal(t, "Amt", base.Amount, "base must not change")
		})
	}
}

func TestValue(t *testing.T) {
	tests := []struct {
		name      string
		v         Value
		wantStr   string
		wantFloat float64
		wantBlank bool
	}{
		{"null", Null(), "", 0, true},
		{"text", Text("  abc "), "  abc ", 0, false},
		{"numeric text", Text(" 12.5 "), " 12.5 ", 12.5, false},
		{"blank text", Text("   "), "   ", 0, true},
		{"number", Number(40000), "40000", 40000, false},
		{"fraction", Number(0.25), "0.25", 0.25, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStr, tt.v.String())
			assert.Equal(t, tt.wantFloat, tt.v.Float())
			assert.Equal(t, tt.wantBlank, tt.v.Blank())
		})
	}
}

func TestTable_AppendAndLookup(t *testing.T) {
	tbl := NewTable([]string{"A", "B", "C"})
	tbl.Append(Text("1"))
	tbl.Append(Text("1"), Text("2"), Text("3"), Text("4"))

	require.Equal(t, 2, tbl.Len())
	assert.Len(t, tbl.Rows[0], 3)
	assert.True(t, tbl.Rows[0][2].IsNull())
	assert.Len(t, tbl.Rows[1], 3)
	assert.Equal(t, 1, tbl.ColumnIndex("B"))
	assert.Equal(t, -1, tbl.ColumnIndex("Z"))

	m := NewColumnMapping()
	m.SetHeader(Amount, "C")
	m.SetHeader(State, "missing")
	assert.Equal(t, 2, tbl.FieldIndex(m, Amount))
	assert.Equal(t, -1, tbl.FieldIndex(m, State))
	assert.Equal(t, -1, tbl.FieldIndex(m, BankName))

	head := tbl.Head(1)
	head.Rows[0][0] = Text("changed")
	assert.Equal(t, "1", tbl.Rows[0][0].String())
}

func TestTable_JSON(t *testing.T) {
	tbl := NewTable([]string{"a", "b", "c"})
	tbl.Append(Text("x"), Number(1.5), Null())
	data, err := json.Marshal(tbl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["a","b","c"],"rows":[["x",1.5,null]]}`, string(data))
}

func TestAggregatedAccount_AckCount(t *testing.T) {
	tests := []struct {
		acks string
		want int
	}{
		{"", 0},
		{"ACK001", 1},
		{"ACK001;ACK002", 2},
		{"ACK001; ACK002,ACK003", 3},
		{";;", 0},
	}
	for _, tt := range tests {
		a := AggregatedAccount{AcknowledgementNumbers: tt.acks}
		assert.Equal(t, tt.want, a.AckCount(), tt.acks)
	}
}

func TestCanonicalField(t *testing.T) {
	assert.Len(t, AllFields(), 10)
	assert.Equal(t, []CanonicalField{BankAccountNumber, Amount}, RequiredFields())
	for _, f := range AllFields() {
		assert.True(t, f.Valid())
		assert.NotEmpty(t, f.DisplayName())
	}
	assert.True(t, Amount.Required())
	assert.False(t, BankName.Required())
	_, ok := ParseCanonicalField("bogus")
	assert.False(t, ok)
}
