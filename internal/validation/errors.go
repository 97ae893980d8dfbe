package validation

import (
	"errors"
	"fmt"

	"github.com/krishnaenterprise/CYBER/internal/domain"
	"github.com/krishnaenterprise/CYBER/internal/ingest"
)

// Category separates issues that stop processing from those that do not.
type Category string

const (
	Critical Category = "critical"
	Warning  Category = "warning"
)

// Code identifies a validation issue.
type Code string

// Critical codes.
const (
	CodeNoAccountColumn Code = "NO_ACCOUNT_COLUMN"
	CodeNoAmountColumn  Code = "NO_AMOUNT_COLUMN"
	CodeFileCorrupted   Code = "FILE_CORRUPTED"
	CodeFileTooLarge    Code = "FILE_TOO_LARGE"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeEmptyFile       Code = "EMPTY_FILE"
)

// Warning codes.
const (
	CodeMissingIFSC       Code = "MISSING_IFSC"
	CodeMissingAddress    Code = "MISSING_ADDRESS"
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeDuplicateAck      Code = "DUPLICATE_ACK"
	CodeInvalidAccount    Code = "INVALID_ACCOUNT"
	CodeInvalidIFSCFormat Code = "INVALID_IFSC_FORMAT"
	CodeAmbiguousColumn   Code = "AMBIGUOUS_COLUMN"
)

type codeInfo struct {
	category   Category
	message    string
	suggestion string
}

var codes = map[Code]codeInfo{
	CodeNoAccountColumn: {Critical, "No bank account number column found in the file",
		"Rename the account column (e.g. \"Bank Account No\") or map it manually"},
	CodeNoAmountColumn: {Critical, "No amount column found in the file",
		"Rename the amount column (e.g. \"Amount\") or map it manually"},
	CodeFileCorrupted: {Critical, "File is corrupted or unreadable",
		"Open the file in a spreadsheet program and save it again as .xlsx or .csv"},
	CodeFileTooLarge: {Critical, "File exceeds the maximum size limit",
		"Split the file into smaller parts"},
	CodeInvalidFormat: {Critical, "File format is not supported",
		"Upload an .xlsx, .xls or .csv file"},
	CodeEmptyFile: {Critical, "File contains no data",
		"Check that the first sheet holds a header row and transactions"},
	CodeMissingIFSC:       {Warning, "IFSC code missing in %d rows", ""},
	CodeMissingAddress:    {Warning, "Address missing in %d rows", ""},
	CodeInvalidAmount:     {Warning, "Invalid or non-positive amount in %d rows, using the parsed value", ""},
	CodeDuplicateAck:      {Warning, "%d acknowledgement numbers appear more than once", ""},
	CodeInvalidAccount:    {Warning, "Invalid account number format in %d rows", "Account numbers should have 9 to 18 digits"},
	CodeInvalidIFSCFormat: {Warning, "Invalid IFSC format in %d rows", "IFSC codes have exactly 11 letters and digits"},
	CodeAmbiguousColumn:   {Warning, "Column %q matches several fields", "Confirm the column mapping before processing"},
}

// Category returns the category of c. Unknown codes are warnings.
func (c Code) Category() Category {
	if info, ok := codes[c]; ok {
		return info.category
	}
	return Warning
}

// ErrorResponse is a user-facing description of one issue.
type ErrorResponse struct {
	Code       Code                    `json:"code"`
	Category   Category                `json:"category"`
	Message    string                  `json:"message"`
	Suggestion string                  `json:"suggestion,omitempty"`
	Count      int                     `json:"count,omitempty"`
	Fields     []domain.CanonicalField `json:"fields,omitempty"`
}

func newResponse(code Code, args ...any) ErrorResponse {
	info, ok := codes[code]
	if !ok {
		return ErrorResponse{Code: code, Category: Warning, Message: "Unknown error: " + string(code)}
	}
	msg := info.message
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return ErrorResponse{
		Code:       code,
		Category:   info.category,
		Message:    msg,
		Suggestion: info.suggestion,
	}
}

func countResponse(code Code, n int) ErrorResponse {
	r := newResponse(code, n)
	r.Count = n
	return r
}

// CheckStructure returns a critical response for every required field the
// mapping does not cover.
func CheckStructure(m *domain.ColumnMapping) []ErrorResponse {
	var out []ErrorResponse
	for _, f := range MissingRequired(m) {
		out = append(out, missingFieldResponse(f))
	}
	return out
}

func missingFieldResponse(f domain.CanonicalField) ErrorResponse {
	if f == domain.Amount {
		return newResponse(CodeNoAmountColumn)
	}
	return newResponse(CodeNoAccountColumn)
}

// Classify turns an error from reading or checking an upload into a
// response. Errors it does not recognise are reported as INVALID_FORMAT.
func Classify(err error) ErrorResponse {
	var missing *MissingColumnsError
	switch {
	case errors.As(err, &missing) && len(missing.Fields) > 0:
		r := missingFieldResponse(missing.Fields[0])
		r.Fields = missing.Fields
		return r
	case errors.Is(err, ingest.ErrFileTooLarge):
		return newResponse(CodeFileTooLarge)
	case errors.Is(err, ingest.ErrEmptyFile):
		return newResponse(CodeEmptyFile)
	case errors.Is(err, ingest.ErrCorruptedFile):
		return newResponse(CodeFileCorrupted)
	}
	return newResponse(CodeInvalidFormat)
}
