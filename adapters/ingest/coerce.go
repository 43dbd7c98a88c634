package ingest

import (
	"math"
	"strconv"
	"strings"

	"goharmonic/domain/catalog"
)

// ColumnTyper decides whether a delimited column is numeric from its first non-empty cells
type ColumnTyper struct {
	NumericThreshold float64 // share of sampled cells that must parse as numbers
	SampleSize       int     // number of non-empty cells inspected
}

// DefaultColumnTyper returns the thresholds used for VizieR-style exports
func DefaultColumnTyper() ColumnTyper {
	return ColumnTyper{
		NumericThreshold: 0.8,
		SampleSize:       20,
	}
}

// Infer returns catalog.TypeNumeric or catalog.TypeText for a column's cells.
// A column with no non-empty cells is numeric; every cell becomes null either way.
func (c ColumnTyper) Infer(cells []string) string {
	sampled, numeric := 0, 0
	for _, cell := range cells {
		cell = strings.TrimSpace(cell)
		if isMissing(cell) {
			continue
		}
		sampled++
		if _, ok := parseNumber(cell); ok {
			numeric++
		}
		if sampled >= c.SampleSize {
			break
		}
	}
	if sampled == 0 {
		return catalog.TypeNumeric
	}
	if float64(numeric)/float64(sampled) >= c.NumericThreshold {
		return catalog.TypeNumeric
	}
	return catalog.TypeText
}

// coerceCell converts one cell according to its column type; failures become null
func coerceCell(cell, columnType string) catalog.Value {
	cell = strings.TrimSpace(cell)
	if isMissing(cell) {
		return catalog.Null()
	}
	if columnType == catalog.TypeText {
		return catalog.TextValue(cell)
	}
	if v, ok := parseNumber(cell); ok {
		return v
	}
	return catalog.Null()
}

// parseNumber prefers an integer reading and rejects non-finite floats
func parseNumber(s string) (catalog.Value, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return catalog.IntValue(i), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return catalog.Null(), false
	}
	return catalog.FloatValue(f), true
}

func isMissing(s string) bool {
	switch s {
	case "", "--", "null", "NULL", "NA", "N/A":
		return true
	}
	return false
}
