package ingest

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readWorkbook returns the rows of the first sheet. Legacy binary .xls files
// cannot be opened and are reported as corrupted with a conversion hint.
func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("readWorkbook: %w: %w (legacy .xls files must be saved as .xlsx)", ErrCorruptedFile, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmptyFile
	}

	// Raw values keep long numeric account numbers out of the General
	// display format, which renders them in scientific notation.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("readWorkbook: reading sheet %q: %w: %w", sheet, ErrCorruptedFile, err)
	}
	return rows, nil
}
