// Package flatten unpacks nested event records into flat tables
package flatten

import (
	"sort"

	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/table"
)

// Flatten returns t unchanged for tabular contracts. For event contracts the nested column's
// keys become sibling columns, then the result is projected onto the contract's flat columns.
// When none of the flat columns exist the unpacked table is returned unfiltered.
func Flatten(c contracts.Contract, t *table.Table) *table.Table {
	if !c.IsEvent() {
		return t
	}

	unpacked := Unnest(t, c.NestedColumn())

	var keep []string

	for _, col := range c.FlatColumns {
		if unpacked.HasColumn(col) {
			keep = append(keep, col)
		}
	}

	if len(keep) == 0 {
		return unpacked
	}

	return unpacked.Select(keep...)
}

// Unnest replaces column with the union of its record keys. Keys appear in first-seen order
// (sorted within a record) after the remaining top-level columns; nested values win over
// same-named top-level values. A missing column leaves t as it is.
func Unnest(t *table.Table, column string) *table.Table {
	if column == "" || !t.HasColumn(column) {
		return t
	}

	nested, _ := t.Column(column)

	var (
		keys []string
		seen = map[string]bool{}
	)

	for _, v := range nested {
		rec, ok := v.(map[string]any)
		if !ok {
			continue
		}

		for _, k := range sortedKeys(rec) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	columns := make([]string, 0, len(t.Columns())+len(keys))

	for _, col := range t.Columns() {
		if col != column && !seen[col] {
			columns = append(columns, col)
		}
	}

	columns = append(columns, keys...)

	out := table.MustNew(columns...)

	for i := 0; i < t.Len(); i++ {
		row := t.Record(i)

		if rec, ok := row[column].(map[string]any); ok {
			for _, k := range keys {
				if v, present := rec[k]; present {
					row[k] = v
				}
			}
		}

		out.AppendRecord(row)
	}

	return out
}

func sortedKeys(rec map[string]any) []string {
	out := make([]string, 0, len(rec))
	for k := range rec {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
