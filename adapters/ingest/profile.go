package ingest

import (
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"goharmonic/domain/catalog"
)

// ColumnProfile summarises the positive numeric values of one column
type ColumnProfile struct {
	Name    string  `json:"name"`
	NonNull int     `json:"non_null"`
	Numeric bool    `json:"numeric"`
	Count   int     `json:"positive_count"`
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`
	Median  float64 `json:"median,omitempty"`
}

// Profile is a quick look at a catalog before choosing observables
type Profile struct {
	Source        string          `json:"source"`
	Records       int             `json:"records"`
	Malformed     int             `json:"malformed"`
	Columns       []ColumnProfile `json:"columns"`
	PeriodColumns []string        `json:"period_columns"`
}

// periodHints are substrings that mark candidate period or frequency columns
var periodHints = []string{"per", "freq"}

// Inspect profiles a record set: per-column value counts, summary of positive
// numeric values, and columns whose names look like periods or frequencies
func Inspect(set *catalog.RecordSet) Profile {
	p := Profile{Source: set.Source, Records: set.Len(), Malformed: set.Malformed}

	columns := set.Columns
	if len(columns) == 0 {
		columns = columnsOf(set.Records)
	}

	for _, name := range columns {
		cp := ColumnProfile{Name: name, Numeric: true}
		var positive []float64
		for _, rec := range set.Records {
			v, ok := rec[name]
			if !ok || v.IsNull() {
				continue
			}
			cp.NonNull++
			f, isNum := v.Float64()
			if !isNum || v.Kind == catalog.KindText {
				cp.Numeric = false
				continue
			}
			if f > 0 {
				positive = append(positive, f)
			}
		}
		if cp.NonNull == 0 {
			cp.Numeric = false
		}
		if cp.Numeric && len(positive) > 0 {
			cp.Count = len(positive)
			cp.Min, _ = stats.Min(positive)
			cp.Max, _ = stats.Max(positive)
			cp.Median, _ = stats.Median(positive)
		}
		p.Columns = append(p.Columns, cp)

		if looksLikePeriod(name) {
			p.PeriodColumns = append(p.PeriodColumns, name)
		}
	}
	return p
}

func looksLikePeriod(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range periodHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func columnsOf(records []catalog.RawRecord) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
