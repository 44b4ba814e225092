// Package tabular holds the in-memory table model and the row transforms
// applied to it.
//
// Tables have value semantics: every transform returns a new Table and never
// writes through to its input, so a source table loaded once can feed any
// number of artifact chains. Rows are stored positionally; a row slice is
// never modified after it has been handed to a Table.
package tabular

import (
	"fmt"
	"slices"
)

// Table is an ordered sequence of rows over named columns.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New builds a table, copying columns and rows.
// Column names must be unique and every row must match the column count.
func New(columns []string, rows [][]Value) (Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return Table{}, schemaMismatch("duplicate column %q", c)
		}
		index[c] = i
	}

	copied := make([][]Value, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return Table{}, schemaMismatch("row %d has %d cells, want %d", i, len(r), len(columns))
		}
		copied[i] = slices.Clone(r)
	}

	return Table{columns: slices.Clone(columns), index: index, rows: copied}, nil
}

// MustNew is New for literals in tests and static fixtures. Panics on error.
func MustNew(columns []string, rows [][]Value) Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(fmt.Sprintf("tabular.MustNew: %v", err))
	}
	return t
}

// build wraps already-owned slices without copying.
func build(columns []string, rows [][]Value) Table {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return Table{columns: columns, index: index, rows: rows}
}

// Columns returns the column names in order.
func (t Table) Columns() []string { return slices.Clone(t.columns) }

// Len returns the number of rows.
func (t Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t Table) Width() int { return len(t.columns) }

// Has reports whether the table carries the named column.
func (t Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of a column or ErrColumnNotFound.
func (t Table) ColumnIndex(name string) (int, error) {
	i, ok := t.index[name]
	if !ok {
		return 0, columnNotFound(name)
	}
	return i, nil
}

// Row returns a copy of row i.
func (t Table) Row(i int) []Value { return slices.Clone(t.rows[i]) }

// At returns the cell at row i in the named column.
func (t Table) At(i int, column string) (Value, error) {
	c, err := t.ColumnIndex(column)
	if err != nil {
		return Value{}, err
	}
	return t.rows[i][c], nil
}

// Column returns a copy of every cell in the named column.
func (t Table) Column(name string) ([]Value, error) {
	c, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[c]
	}
	return out, nil
}

// Records renders the table as strings, header first.
func (t Table) Records() [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	out = append(out, t.Columns())
	for _, r := range t.rows {
		rec := make([]string, len(r))
		for i, v := range r {
			rec[i] = v.String()
		}
		out = append(out, rec)
	}
	return out
}

// indexes resolves several column names at once, reporting every missing name.
func (t Table) indexes(names []string) ([]int, error) {
	out := make([]int, len(names))
	var missing []string
	for i, n := range names {
		c, ok := t.index[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		out[i] = c
	}
	if len(missing) > 0 {
		return nil, columnNotFound(missing...)
	}
	return out, nil
}
