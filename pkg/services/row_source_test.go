package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
)

var testHeaders = []string{"email", "name", "role"}

func TestParseImportFile_CSV(t *testing.T) {
	data := []byte("Email,NAME,role\nalice@example.com,Alice,org_member\nbob@example.com,Bob,org_admin\n")

	rows, err := ParseImportFile("users.csv", data, 1024, testHeaders)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Headers are lower-cased and trimmed regardless of input casing
	assert.Equal(t, "alice@example.com", rows[0].Get("email"))
	assert.Equal(t, "Alice", rows[0].Get("name"))
	assert.Equal(t, "org_member", rows[0].Get("role"))
	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, 2, rows[1].RowNumber)
}

func TestParseImportFile_SkipsBlankRows(t *testing.T) {
	data := []byte("email,name,role\nalice@example.com,Alice,org_member\n,,\nbob@example.com,Bob,org_admin\n")

	rows, err := ParseImportFile("users.csv", data, 1024, testHeaders)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Blank rows are skipped but still consume row numbers
	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, 3, rows[1].RowNumber)
}

func TestParseImportFile_RaggedRows(t *testing.T) {
	data := []byte("email,name,role\nalice@example.com,Alice\n")

	rows, err := ParseImportFile("users.csv", data, 1024, testHeaders)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0].Get("name"))
	assert.Equal(t, "", rows[0].Get("role"))
}

func TestParseImportFile_MissingHeaders(t *testing.T) {
	data := []byte("email,name\nalice@example.com,Alice\n")

	_, err := ParseImportFile("users.csv", data, 1024, testHeaders)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrImportInvalid)
	assert.Contains(t, err.Error(), "missing required columns: role")
}

func TestParseImportFile_EmptyFile(t *testing.T) {
	_, err := ParseImportFile("users.csv", []byte(""), 1024, testHeaders)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrImportInvalid)
	assert.Contains(t, err.Error(), "file is empty")
}

func TestParseImportFile_NoDataRows(t *testing.T) {
	data := []byte("email,name,role\n,,\n")

	_, err := ParseImportFile("users.csv", data, 1024, testHeaders)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrImportInvalid)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestParseImportFile_UnsupportedExtension(t *testing.T) {
	_, err := ParseImportFile("users.pdf", []byte("whatever"), 1024, testHeaders)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFile)
}

func TestParseImportFile_FileTooLarge(t *testing.T) {
	data := []byte("email,name,role\nalice@example.com,Alice,org_member\n")

	_, err := ParseImportFile("users.csv", data, 10, testHeaders)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFileTooLarge)
}

func TestParseImportFile_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]string{"email", "name", "role"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]string{"alice@example.com", "Alice", "org_member"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ParseImportFile("users.xlsx", buf.Bytes(), int64(buf.Len()), testHeaders)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice@example.com", rows[0].Get("email"))
}

func TestParseImportFile_CorruptXLSX(t *testing.T) {
	_, err := ParseImportFile("users.xlsx", []byte("not a workbook"), 1024, testHeaders)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrImportInvalid)
}

func TestImportRow_GetTrims(t *testing.T) {
	row := ImportRow{Values: map[string]string{"name": "  Alice  "}}
	assert.Equal(t, "Alice", row.Get("name"))
	assert.Equal(t, "", row.Get("missing"))
}
