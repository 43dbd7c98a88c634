package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"goharmonic/domain/catalog"
	"goharmonic/internal/errors"
)

// DelimitedOptions configures header-row delimited parsing
type DelimitedOptions struct {
	IDField   string
	Delimiter rune
	Typer     ColumnTyper
}

// ParseDelimited reads a header-row delimited catalog. Lines starting with '#'
// are comments. Column types are inferred from the first non-empty cells.
func ParseDelimited(source string, opts DelimitedOptions, r io.Reader) (*catalog.RecordSet, error) {
	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	if reader.Comma == 0 {
		reader.Comma = ','
	}
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = reader.Comma != '\t'

	rows, err := reader.ReadAll()
	if err != nil {
		wrapped := errors.SourceUnavailable(source, err)
		return catalog.Empty(source, opts.IDField, wrapped), wrapped
	}
	if len(rows) < 2 {
		wrapped := errors.SourceUnavailable(source, fmt.Errorf("need a header row and at least one data row"))
		return catalog.Empty(source, opts.IDField, wrapped), wrapped
	}

	table := catalog.Table{Columns: rows[0], Rows: rows[1:]}
	return FromTable(source, opts.IDField, table, opts.Typer)
}

// FromTable converts an in-memory table into a record set. Type hints on the
// table win over inference. Rows whose identifier does not parse as an integer
// are skipped and counted.
func FromTable(source, idField string, table catalog.Table, typer ColumnTyper) (*catalog.RecordSet, error) {
	if typer.SampleSize == 0 {
		typer = DefaultColumnTyper()
	}

	columns := make([]string, len(table.Columns))
	idIndex := -1
	for i, c := range table.Columns {
		columns[i] = strings.TrimSpace(c)
		if columns[i] == idField {
			idIndex = i
		}
	}
	if idIndex < 0 {
		err := errors.SourceUnavailable(source, fmt.Errorf("identifier column %q not found", idField))
		return catalog.Empty(source, idField, err), err
	}

	types := make([]string, len(columns))
	for i, name := range columns {
		if hint, ok := table.Types[name]; ok {
			types[i] = hint
			continue
		}
		types[i] = typer.Infer(column(table.Rows, i))
	}

	set := &catalog.RecordSet{Source: source, IDField: idField, Columns: columns}
	for _, row := range table.Rows {
		if blankRow(row) {
			continue
		}
		idValue, ok := parseIdentifier(cell(row, idIndex))
		if !ok {
			set.Malformed++
			continue
		}
		record := make(catalog.RawRecord, len(columns))
		for i, name := range columns {
			if i == idIndex {
				record[name] = idValue
				continue
			}
			record[name] = coerceCell(cell(row, i), types[i])
		}
		set.Records = append(set.Records, record)
	}

	if len(set.Records) == 0 {
		set.Err = errors.SourceUnavailable(source, fmt.Errorf("no parseable rows (%d malformed)", set.Malformed))
		return set, set.Err
	}
	return set, nil
}

func parseIdentifier(raw string) (catalog.Value, bool) {
	v, ok := parseNumber(strings.TrimSpace(raw))
	if !ok {
		return catalog.Null(), false
	}
	id, ok := v.Int64()
	if !ok {
		return catalog.Null(), false
	}
	return catalog.IntValue(id), true
}

func column(rows [][]string, i int) []string {
	cells := make([]string, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, cell(row, i))
	}
	return cells
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
