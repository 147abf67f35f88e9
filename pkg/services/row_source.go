package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mentora-hq/portal-engine/pkg/apperrors"
)

// ParseImportFile turns an uploaded .csv or .xlsx file into ImportRows.
// Headers are lower-cased and trimmed; cell values keep their raw form
// (validators trim on read). Size limits are enforced here, server-side,
// regardless of what the upload form promised.
func ParseImportFile(fileName string, data []byte, maxBytes int64, requiredHeaders []string) ([]ImportRow, error) {
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", apperrors.ErrFileTooLarge, len(data), maxBytes)
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		records, err = readCSV(data)
	case ".xlsx":
		records, err = readXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFile, filepath.Ext(fileName))
	}
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file is empty", apperrors.ErrImportInvalid)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	if missing := missingHeaders(headers, requiredHeaders); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s",
			apperrors.ErrImportInvalid, strings.Join(missing, ", "))
	}

	rows := make([]ImportRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if isBlankRecord(record) {
			continue
		}
		values := make(map[string]string, len(headers))
		for j, header := range headers {
			if j < len(record) {
				values[header] = record[j]
			}
		}
		rows = append(rows, ImportRow{RowNumber: i + 1, Values: values})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file has no data rows", apperrors.ErrImportInvalid)
	}

	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // ragged rows are a validation concern, not a parse error
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrImportInvalid, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// readXLSX reads the first sheet of a workbook.
func readXLSX(data []byte) ([][]string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrImportInvalid, err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", apperrors.ErrImportInvalid)
	}

	records, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrImportInvalid, err)
	}
	return records, nil
}

func missingHeaders(headers, required []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, r := range required {
		if !present[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
