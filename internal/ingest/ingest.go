// Package ingest reads uploaded fraud transaction spreadsheets into tables.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/krishnaenterprise/CYBER/internal/domain"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrEmptyFile         = errors.New("file is empty")
	ErrCorruptedFile     = errors.New("file is corrupted or unreadable")
)

const (
	// DefaultMaxFileSize is the upload limit, 200 MB.
	DefaultMaxFileSize int64 = 200 << 20

	// DefaultPreviewRows is the number of rows shown before processing.
	DefaultPreviewRows = 10
)

// Format identifies a spreadsheet file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// Limits bounds what an upload may contain.
type Limits struct {
	MaxFileSize int64
}

// DefaultLimits returns the standard upload limits.
func DefaultLimits() Limits {
	return Limits{MaxFileSize: DefaultMaxFileSize}
}

// DetectFormat derives the format from the file extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	}
	return "", fmt.Errorf("%w: %q (expected .xlsx, .xls or .csv)", ErrUnsupportedFormat, filepath.Ext(filename))
}

// Validate checks the filename and declared size before any bytes are read.
func Validate(filename string, size int64, limits Limits) (Format, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return "", err
	}
	if size == 0 {
		return "", ErrEmptyFile
	}
	if limits.MaxFileSize > 0 && size > limits.MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrFileTooLarge, size, limits.MaxFileSize)
	}
	return format, nil
}

// ReadTable reads a whole upload from r. The first row holds the headers.
func ReadTable(r io.Reader, filename string, limits Limits) (*domain.Table, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	src := r
	if limits.MaxFileSize > 0 {
		src = io.LimitReader(r, limits.MaxFileSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("ReadTable: reading upload: %w", err)
	}
	if _, err := Validate(filename, int64(len(data)), limits); err != nil {
		return nil, err
	}

	return ReadBytes(data, format)
}

// ReadBytes parses data already held in memory.
func ReadBytes(data []byte, format Format) (*domain.Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(data)
	case FormatXLSX, FormatXLS:
		records, err = readWorkbook(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return buildTable(records)
}

// buildTable turns raw records into a table. Blank headers become
// "Unnamed: <i>" and repeated headers get a ".<n>" suffix so every column is
// addressable by name.
func buildTable(records [][]string) (*domain.Table, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrEmptyFile
	}

	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}

	headers := make([]string, width)
	used := make(map[string]bool, width)
	suffix := make(map[string]int)
	for i := range headers {
		h := ""
		if i < len(records[0]) {
			h = records[0][i]
		}
		if strings.TrimSpace(h) == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for used[name] {
			suffix[h]++
			name = h + "." + strconv.Itoa(suffix[h])
		}
		used[name] = true
		headers[i] = name
	}

	t := domain.NewTable(headers)
	for _, rec := range records[1:] {
		row := make([]domain.Value, width)
		for i, cell := range rec {
			if cell != "" {
				row[i] = domain.Text(cell)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Preview returns the first n rows, DefaultPreviewRows when n <= 0.
func Preview(t *domain.Table, n int) *domain.Table {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	return t.Head(n)
}
