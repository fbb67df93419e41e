// Package table provides the small in-memory, column-ordered table passed between pipeline stages
package table

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrWidthMismatch is returned when a row does not match the table width
	ErrWidthMismatch = errors.New("row width does not match column count")
	// ErrDuplicateColumn is returned when a column name is used twice
	ErrDuplicateColumn = errors.New("duplicate column")
)

// Table is an ordered set of named columns over rows of loosely typed values.
// A nil cell is a null.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty table with the given columns
func New(columns ...string) (*Table, error) {
	t := &Table{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}

	for _, c := range columns {
		if _, dup := t.index[c]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, c)
		}

		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
	}

	return t, nil
}

// MustNew is New for statically known column lists
func MustNew(columns ...string) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}

	return t
}

// FromRecords builds a table from records keyed by column; absent keys become nulls
func FromRecords(columns []string, records []map[string]any) (*Table, error) {
	t, err := New(columns...)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		t.AppendRecord(rec)
	}

	return t, nil
}

// Columns returns the column names in order
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether the table has the named column
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Append adds a row given in column order
func (t *Table) Append(values ...any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrWidthMismatch, len(values), len(t.columns))
	}

	t.rows = append(t.rows, append([]any(nil), values...))

	return nil
}

// AppendRecord adds a row from a record keyed by column. Keys that are not columns are ignored.
func (t *Table) AppendRecord(rec map[string]any) {
	row := make([]any, len(t.columns))
	for i, c := range t.columns {
		row[i] = rec[c]
	}

	t.rows = append(t.rows, row)
}

// Value returns the cell at (row, column); ok is false when the column does not exist
func (t *Table) Value(row int, column string) (any, bool) {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.rows) {
		return nil, false
	}

	return t.rows[row][i], true
}

// Record returns one row keyed by column
func (t *Table) Record(row int) map[string]any {
	out := make(map[string]any, len(t.columns))
	for i, c := range t.columns {
		out[c] = t.rows[row][i]
	}

	return out
}

// Column returns every value of the named column in row order
func (t *Table) Column(name string) ([]any, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}

	out := make([]any, len(t.rows))
	for r := range t.rows {
		out[r] = t.rows[r][i]
	}

	return out, true
}

// Select projects the table onto the named columns that exist, in the given order
func (t *Table) Select(columns ...string) *Table {
	keep := make([]string, 0, len(columns))
	for _, c := range columns {
		if t.HasColumn(c) {
			keep = append(keep, c)
		}
	}

	out := MustNew(dedupe(keep)...)
	out.rows = make([][]any, len(t.rows))

	for r, row := range t.rows {
		projected := make([]any, len(out.columns))
		for i, c := range out.columns {
			projected[i] = row[t.index[c]]
		}
		out.rows[r] = projected
	}

	return out
}

// Equal reports whether both tables have the same columns and rows in the same order
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}

	return reflect.DeepEqual(t.columns, other.columns) && reflect.DeepEqual(t.rows, other.rows)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))

	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}
