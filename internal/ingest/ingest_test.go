package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"fraud.csv", FormatCSV, false},
		{"FRAUD.XLSX", FormatXLSX, false},
		{"old.xls", FormatXLS, false},
		{"report.pdf", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	limits := Limits{MaxFileSize: 100}

	_, err := Validate("a.csv", 101, limits)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = Validate("a.csv", 0, limits)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Validate("a.txt", 10, limits)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	f, err := Validate("a.csv", 100, limits)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
}

func TestReadTable_CSV(t *testing.T) {
	data := "Bank Account No,Ack No,Amount,Bank Name\n" +
		"123456789012,ACK001,\"15,000\",SBI\n" +
		"123456789012,ACK002,25000,\n" +
		"987654321098,ACK003,75000,HDFC\n"

	tbl, err := ReadTable(strings.NewReader(data), "upload.csv", DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bank Account No", "Ack No", "Amount", "Bank Name"}, tbl.Columns)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, domain.Text("15,000"), tbl.Rows[0][2])
	assert.True(t, tbl.Rows[1][3].IsNull(), "empty cells are null")
}

func TestReadTable_CSVDelimiterAndBOM(t *testing.T) {
	data := "\xEF\xBB\xBFAccount;Amount\n111;10\n222;20\n"

	tbl, err := ReadTable(strings.NewReader(data), "semi.csv", DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, []string{"Account", "Amount"}, tbl.Columns)
	assert.Equal(t, domain.Text("222"), tbl.Rows[1][0])
}

func TestReadTable_CSVWindows1252(t *testing.T) {
	data := []byte("Address,Amount\nCaf\xe9 Road,\x8010\n")

	tbl, err := ReadTable(bytes.NewReader(data), "latin.csv", DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, domain.Text("Café Road"), tbl.Rows[0][0])
	assert.Equal(t, domain.Text("€10"), tbl.Rows[0][1])
}

func TestReadTable_HeaderRepair(t *testing.T) {
	data := "Amount,,Amount,Amount.1,Amount\n1,2,3,4,5,6\n"

	tbl, err := ReadTable(strings.NewReader(data), "dups.csv", DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, []string{"Amount", "Unnamed: 1", "Amount.1", "Amount.1.1", "Amount.2", "Unnamed: 5"}, tbl.Columns)
	assert.Equal(t, domain.Text("6"), tbl.Rows[0][5])
}

func TestReadTable_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Account No", "Amount", "Bank"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"123456789012", 15000, "SBI"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"987654321098", 75000.5}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	tbl, err := ReadTable(bytes.NewReader(buf.Bytes()), "book.xlsx", DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, []string{"Account No", "Amount", "Bank"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "123456789012", tbl.Rows[0][0].String())
	assert.Equal(t, "15000", tbl.Rows[0][1].String())
	assert.Equal(t, "75000.5", tbl.Rows[1][1].String())
	assert.True(t, tbl.Rows[1][2].IsNull())
}

func TestReadTable_XLSXNumericAccounts(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Account No", "Amount"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{int64(12345678901234567), 2500}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{int64(987654321098), 0.25}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	tbl, err := ReadTable(bytes.NewReader(buf.Bytes()), "book.xlsx", DefaultLimits())
	require.NoError(t, err)

	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "12345678901234567", tbl.Rows[0][0].String())
	assert.Equal(t, "2500", tbl.Rows[0][1].String())
	assert.Equal(t, "987654321098", tbl.Rows[1][0].String())
	assert.Equal(t, "0.25", tbl.Rows[1][1].String())
}

func TestReadTable_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		limits   Limits
		want     error
	}{
		{"too large", bytes.Repeat([]byte("a"), 11), "a.csv", Limits{MaxFileSize: 10}, ErrFileTooLarge},
		{"empty", nil, "a.csv", DefaultLimits(), ErrEmptyFile},
		{"whitespace only", []byte("  \n "), "a.csv", DefaultLimits(), ErrEmptyFile},
		{"not a workbook", []byte("definitely not a zip"), "a.xlsx", DefaultLimits(), ErrCorruptedFile},
		{"legacy xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "a.xls", DefaultLimits(), ErrCorruptedFile},
		{"wrong extension", []byte("a,b"), "a.json", DefaultLimits(), ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTable(bytes.NewReader(tt.data), tt.filename, tt.limits)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPreview(t *testing.T) {
	tbl := domain.NewTable([]string{"a"})
	for i := 0; i < 25; i++ {
		tbl.Append(domain.Text("x"))
	}
	assert.Equal(t, DefaultPreviewRows, Preview(tbl, 0).Len())
	assert.Equal(t, 3, Preview(tbl, 3).Len())
	assert.Equal(t, 25, Preview(tbl, 100).Len())
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ',', sniffDelimiter([]byte("a,b,c\n1;2")))
	assert.Equal(t, ';', sniffDelimiter([]byte("a;b;c")))
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb")))
	assert.Equal(t, '|', sniffDelimiter([]byte("a|b|c")))
	assert.Equal(t, ';', sniffDelimiter([]byte(`"x,y,z";b`)))
	assert.Equal(t, ',', sniffDelimiter([]byte("single")))
}
