package ingest

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"goharmonic/domain/catalog"
	"goharmonic/internal/errors"
)

const maxLineBytes = 1 << 20

// ParseFixedWidth decodes a fixed-width catalog. Each field comes from its
// [Start, End) byte range; a bad field is null for that row only. A row whose
// identifier does not parse is skipped and counted as malformed.
func ParseFixedWidth(source string, layout catalog.Layout, r io.Reader) (*catalog.RecordSet, error) {
	if _, ok := findField(layout, layout.IDField); !ok {
		err := errors.ConfigInvalid(fmt.Sprintf("layout has no field for identifier %q", layout.IDField))
		return catalog.Empty(source, layout.IDField, err), err
	}

	set := &catalog.RecordSet{
		Source:  source,
		IDField: layout.IDField,
		Columns: layoutColumns(layout),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, err := DecodeFixedLine(line, layout)
		if err != nil {
			set.Malformed++
			continue
		}
		set.Records = append(set.Records, record)
	}
	if err := scanner.Err(); err != nil {
		set.Err = errors.SourceUnavailable(source, err)
		return set, set.Err
	}

	if len(set.Records) == 0 {
		set.Err = errors.SourceUnavailable(source, fmt.Errorf("no parseable rows (%d malformed)", set.Malformed))
		return set, set.Err
	}
	return set, nil
}

// DecodeFixedLine decodes one line. The only row-level failure is an
// identifier that is missing or not an integer.
func DecodeFixedLine(line string, layout catalog.Layout) (catalog.RawRecord, error) {
	record := make(catalog.RawRecord, len(layout.Fields))
	for _, spec := range layout.Fields {
		record[spec.Name] = decodeField(line, spec)
	}

	id, ok := record[layout.IDField].Int64()
	if !ok {
		raw := sliceField(line, layout.IDField, layout)
		return nil, errors.MalformedRecord(fmt.Errorf("identifier %q is not an integer", raw))
	}
	record[layout.IDField] = catalog.IntValue(id)
	return record, nil
}

func decodeField(line string, spec catalog.FieldSpec) catalog.Value {
	raw, ok := extract(line, spec.Start, spec.End)
	if !ok || raw == "" {
		return catalog.Null()
	}

	switch spec.Type {
	case catalog.FieldInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return catalog.Null()
		}
		return catalog.IntValue(i)
	case catalog.FieldFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return catalog.Null()
		}
		return catalog.FloatValue(f)
	case catalog.FieldCode:
		return catalog.CodeValue(raw)
	}
	return catalog.Null()
}

// extract returns the trimmed bytes in [start, end). A range starting past the
// end of the line is out of range; one that overruns it is clipped.
func extract(line string, start, end int) (string, bool) {
	if start < 0 || start >= len(line) || end <= start {
		return "", false
	}
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[start:end]), true
}

func sliceField(line, name string, layout catalog.Layout) string {
	spec, _ := findField(layout, name)
	raw, _ := extract(line, spec.Start, spec.End)
	return raw
}

func findField(layout catalog.Layout, name string) (catalog.FieldSpec, bool) {
	for _, f := range layout.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return catalog.FieldSpec{}, false
}

func layoutColumns(layout catalog.Layout) []string {
	cols := make([]string, len(layout.Fields))
	for i, f := range layout.Fields {
		cols[i] = f.Name
	}
	return cols
}
