// Package measure holds time-indexed measurement tables and their
// persistence: Arrow IPC files at a selectable floating-point precision, or
// plain CSV.
package measure

import (
	"fmt"
)

// Table is a time-indexed set of named measurement columns. Values is
// column-major: Values[c][r] is column c at row r.
type Table struct {
	Times   []int64 // seconds since simulation start
	Columns []string
	Values  [][]float64
}

// NewTable allocates a zeroed table for the given time index and columns.
func NewTable(times []int64, columns []string) *Table {
	values := make([][]float64, len(columns))
	for i := range values {
		values[i] = make([]float64, len(times))
	}
	return &Table{Times: times, Columns: columns, Values: values}
}

// Rows returns the number of rows.
func (t *Table) Rows() int { return len(t.Times) }

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	for i, c := range t.Columns {
		if c == name {
			return t.Values[i], true
		}
	}
	return nil, false
}

// Select returns a new table containing only the columns present in the
// given set, preserving column order. Identifiers in the set without a
// matching column are ignored. The returned table shares column slices with
// the receiver.
func (t *Table) Select(keep map[string]bool) *Table {
	out := &Table{Times: t.Times}
	for i, c := range t.Columns {
		if keep[c] {
			out.Columns = append(out.Columns, c)
			out.Values = append(out.Values, t.Values[i])
		}
	}
	return out
}

// SelectOrdered returns a new table with exactly the named columns in the
// given order. Missing columns are an error.
func (t *Table) SelectOrdered(columns []string) (*Table, error) {
	out := &Table{Times: t.Times}
	for _, name := range columns {
		vals, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		out.Columns = append(out.Columns, name)
		out.Values = append(out.Values, vals)
	}
	return out, nil
}
