package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"goharmonic/domain/catalog"
	"goharmonic/internal/errors"
)

// ReadSheet turns one spreadsheet sheet into a table. The first row is the
// header. An empty sheet name selects the first sheet.
func ReadSheet(r io.Reader, sheet string) (catalog.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return catalog.Table{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return catalog.Table{}, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return catalog.Table{}, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return catalog.Table{}, fmt.Errorf("sheet %s must have a header row and at least one data row", sheet)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return catalog.Table{Columns: headers, Rows: rows[1:]}, nil
}

// ParseSheet reads a spreadsheet catalog into a record set
func ParseSheet(source, idField, sheet string, r io.Reader) (*catalog.RecordSet, error) {
	table, err := ReadSheet(r, sheet)
	if err != nil {
		wrapped := errors.SourceUnavailable(source, err)
		return catalog.Empty(source, idField, wrapped), wrapped
	}
	return FromTable(source, idField, table, DefaultColumnTyper())
}
