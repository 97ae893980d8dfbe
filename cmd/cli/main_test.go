package main

import (
	"testing"

	"github.com/krishnaenterprise/CYBER/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormats(t *testing.T) {
	got, err := parseFormats("csv, pdf,,txt")
	require.NoError(t, err)
	assert.Equal(t, []report.Format{report.FormatCSV, report.FormatPDF, report.FormatAudit}, got)

	got, err = parseFormats("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseFormats("csv,docx")
	assert.Error(t, err)
}

func TestParseMappingFlag(t *testing.T) {
	got, err := parseMappingFlag("amount=Fraud Amt, state=")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"amount": "Fraud Amt", "state": ""}, got)

	got, err = parseMappingFlag("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseMappingFlag("amount")
	assert.Error(t, err)
}
