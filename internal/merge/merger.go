// Package merge joins catalog record sets on their identifiers.
//
// The join is an inner join on exact integer identifier equality. Every
// matching combination is emitted, so duplicate identifiers multiply rows
// rather than being dropped. Output order follows the first input.
package merge

import (
	"context"
	"fmt"
	"time"

	"goharmonic/domain/catalog"
	"goharmonic/internal"
	"goharmonic/internal/errors"
)

// MergedSource is the source name given to the joined record set
const MergedSource = "merged"

// InputSummary describes one input of a merge
type InputSummary struct {
	Source        string `json:"source"`
	Records       int    `json:"records"`
	DuplicateKeys int    `json:"duplicate_keys,omitempty"`
}

// Summary contains the result of a merge operation
type Summary struct {
	Inputs        []InputSummary `json:"inputs"`
	RowCount      int            `json:"row_count"`
	ColumnCount   int            `json:"column_count"`
	Collisions    int            `json:"collisions,omitempty"`
	EmptyMerge    bool           `json:"empty_merge"`
	EmptySources  []string       `json:"empty_sources,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// Merger handles record set joins
type Merger struct {
	logger *internal.Logger
}

// NewMerger creates a new merger
func NewMerger(logger *internal.Logger) *Merger {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Merger{logger: logger}
}

// Merge inner-joins the sets on their identifier fields. The result carries the
// first set's identifier field. Any empty input yields an empty result with
// EmptyMerge set; that is a degraded outcome, not an error.
func (m *Merger) Merge(ctx context.Context, sets ...*catalog.RecordSet) (*catalog.RecordSet, *Summary, error) {
	start := time.Now()
	if len(sets) == 0 {
		return nil, nil, errors.ConfigInvalid("merge needs at least one record set")
	}

	summary := &Summary{}
	for _, s := range sets {
		in := InputSummary{Source: s.Source, Records: s.Len(), DuplicateKeys: duplicateKeys(s)}
		if in.DuplicateKeys > 0 {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("%s has %d duplicated identifiers; matches are multiplied", s.Source, in.DuplicateKeys))
		}
		if s.Len() == 0 {
			summary.EmptySources = append(summary.EmptySources, s.Source)
		}
		summary.Inputs = append(summary.Inputs, in)
	}

	first := sets[0]
	out := &catalog.RecordSet{
		Source:  MergedSource,
		IDField: first.IDField,
		Columns: append([]string(nil), first.Columns...),
	}

	if len(summary.EmptySources) > 0 {
		summary.EmptyMerge = true
		summary.ColumnCount = len(out.Columns)
		summary.ExecutionTime = time.Since(start)
		m.logger.Warn("merge produced no rows: empty inputs %v", summary.EmptySources)
		return out, summary, nil
	}

	rows := make([]catalog.RawRecord, 0, first.Len())
	for _, rec := range first.Records {
		if _, ok := rec[first.IDField].Int64(); ok {
			rows = append(rows, copyRecord(rec))
		}
	}

	columns := newColumnSet(out.Columns)
	for _, next := range sets[1:] {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.Wrap(err, "merge cancelled")
		}
		for _, c := range next.Columns {
			columns.add(c)
		}
		index := indexByID(next)
		joined := make([]catalog.RawRecord, 0, len(rows))
		for _, row := range rows {
			id, _ := row[first.IDField].Int64()
			for _, match := range index[id] {
				combined, collisions := combine(row, match, next.Source, columns)
				summary.Collisions += collisions
				joined = append(joined, combined)
			}
		}
		rows = joined
	}

	out.Records = rows
	out.Columns = columns.names
	summary.RowCount = len(rows)
	summary.ColumnCount = len(out.Columns)
	summary.EmptyMerge = len(rows) == 0
	summary.ExecutionTime = time.Since(start)

	m.logger.Info("merged %d sources into %d rows (%d collisions)", len(sets), summary.RowCount, summary.Collisions)
	return out, summary, nil
}

// combine adds match's fields to a copy of row. Equal values under the same
// name collapse; a conflicting value is kept as "<source>.<field>".
func combine(row, match catalog.RawRecord, source string, columns *columnSet) (catalog.RawRecord, int) {
	combined := copyRecord(row)
	collisions := 0
	for field, v := range match {
		existing, ok := combined[field]
		if !ok {
			combined[field] = v
			columns.add(field)
			continue
		}
		if existing == v {
			continue
		}
		qualified := source + "." + field
		combined[qualified] = v
		columns.add(qualified)
		collisions++
	}
	return combined, collisions
}

func indexByID(set *catalog.RecordSet) map[int64][]catalog.RawRecord {
	index := make(map[int64][]catalog.RawRecord, set.Len())
	for _, rec := range set.Records {
		id, ok := rec[set.IDField].Int64()
		if !ok {
			continue
		}
		index[id] = append(index[id], rec)
	}
	return index
}

func duplicateKeys(set *catalog.RecordSet) int {
	seen := make(map[int64]int, set.Len())
	dups := 0
	for _, rec := range set.Records {
		id, ok := rec[set.IDField].Int64()
		if !ok {
			continue
		}
		seen[id]++
		if seen[id] == 2 {
			dups++
		}
	}
	return dups
}

func copyRecord(rec catalog.RawRecord) catalog.RawRecord {
	out := make(catalog.RawRecord, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// columnSet keeps column names unique in first-seen order
type columnSet struct {
	names []string
	seen  map[string]bool
}

func newColumnSet(initial []string) *columnSet {
	c := &columnSet{seen: make(map[string]bool)}
	for _, n := range initial {
		c.add(n)
	}
	return c
}

func (c *columnSet) add(name string) {
	if c.seen[name] {
		return
	}
	c.seen[name] = true
	c.names = append(c.names, name)
}
