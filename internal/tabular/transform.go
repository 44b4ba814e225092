package tabular

import (
	"slices"
	"strings"
)

// Transform maps a table to a new table. Implementations never modify
// their input.
type Transform func(Table) (Table, error)

// Apply runs transforms left to right, stopping at the first error.
func Apply(t Table, transforms ...Transform) (Table, error) {
	var err error
	for _, tr := range transforms {
		if t, err = tr(t); err != nil {
			return Table{}, err
		}
	}
	return t, nil
}

// filterRows keeps the rows for which keep returns true. Rows are shared
// with the input because they are not modified.
func filterRows(t Table, keep func(row []Value) bool) Table {
	rows := make([][]Value, 0, len(t.rows))
	for _, r := range t.rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return build(t.columns, rows)
}

// FilterByCode keeps rows whose column renders as code, then drops the column.
// Used to isolate one region from a nationwide file by its INE code.
func FilterByCode(column, code string) Transform {
	return func(t Table) (Table, error) {
		c, err := t.ColumnIndex(column)
		if err != nil {
			return Table{}, err
		}
		kept := filterRows(t, func(r []Value) bool { return r[c].String() == code })
		return Drop(column)(kept)
	}
}

// Exclude drops rows whose column renders as value.
func Exclude(column, value string) Transform {
	return func(t Table) (Table, error) {
		c, err := t.ColumnIndex(column)
		if err != nil {
			return Table{}, err
		}
		return filterRows(t, func(r []Value) bool { return r[c].String() != value }), nil
	}
}

// Rename renames columns per mapping; unmapped columns pass through.
// Every key must name an existing column.
func Rename(mapping map[string]string) Transform {
	return func(t Table) (Table, error) {
		from := make([]string, 0, len(mapping))
		for k := range mapping {
			from = append(from, k)
		}
		slices.Sort(from)
		if _, err := t.indexes(from); err != nil {
			return Table{}, err
		}

		cols := make([]string, len(t.columns))
		seen := make(map[string]bool, len(t.columns))
		for i, c := range t.columns {
			if n, ok := mapping[c]; ok {
				c = n
			}
			if seen[c] {
				return Table{}, schemaMismatch("rename produces duplicate column %q", c)
			}
			seen[c] = true
			cols[i] = c
		}
		return build(cols, t.rows), nil
	}
}

// Drop removes the named columns. Strict: every name must exist.
func Drop(names ...string) Transform {
	return func(t Table) (Table, error) {
		idx, err := t.indexes(names)
		if err != nil {
			return Table{}, err
		}
		drop := make(map[int]bool, len(idx))
		for _, i := range idx {
			drop[i] = true
		}

		keep := make([]int, 0, len(t.columns)-len(drop))
		for i := range t.columns {
			if !drop[i] {
				keep = append(keep, i)
			}
		}
		return project(t, keep), nil
	}
}

// Select projects the table onto the named columns, in the given order.
func Select(names ...string) Transform {
	return func(t Table) (Table, error) {
		idx, err := t.indexes(names)
		if err != nil {
			return Table{}, err
		}
		seen := make(map[int]bool, len(idx))
		for i, c := range idx {
			if seen[c] {
				return Table{}, schemaMismatch("column %q selected twice", names[i])
			}
			seen[c] = true
		}
		return project(t, idx), nil
	}
}

func project(t Table, idx []int) Table {
	cols := make([]string, len(idx))
	for i, c := range idx {
		cols[i] = t.columns[c]
	}
	rows := make([][]Value, len(t.rows))
	for r, row := range t.rows {
		out := make([]Value, len(idx))
		for i, c := range idx {
			out[i] = row[c]
		}
		rows[r] = out
	}
	return build(cols, rows)
}

// ValueColumn is the name Unpivot gives to the melted values.
const ValueColumn = "value"

// Unpivot reshapes wide to long: each row yields one row per value column,
// carrying the id columns, the value column's name under variable and its
// cell under "value". The result is sorted by idColumns then variable, which
// fixes the category order a cube encoder derives from it.
func Unpivot(idColumns, valueColumns []string, variable string) Transform {
	return func(t Table) (Table, error) {
		ids, err := t.indexes(idColumns)
		if err != nil {
			return Table{}, err
		}
		vals, err := t.indexes(valueColumns)
		if err != nil {
			return Table{}, err
		}
		if len(valueColumns) == 0 {
			return Table{}, schemaMismatch("unpivot needs at least one value column")
		}

		cols := append(slices.Clone(idColumns), variable, ValueColumn)
		if _, err := New(cols, nil); err != nil {
			return Table{}, err
		}

		rows := make([][]Value, 0, len(t.rows)*len(vals))
		for _, r := range t.rows {
			for vi, c := range vals {
				out := make([]Value, 0, len(cols))
				for _, id := range ids {
					out = append(out, r[id])
				}
				out = append(out, Text(valueColumns[vi]), r[c])
				rows = append(rows, out)
			}
		}

		key := make([]int, len(idColumns)+1)
		for i := range key {
			key[i] = i
		}
		sortRows(rows, key)
		return build(cols, rows), nil
	}
}

// SortBy stably sorts rows ascending by the named columns.
func SortBy(columns ...string) Transform {
	return func(t Table) (Table, error) {
		idx, err := t.indexes(columns)
		if err != nil {
			return Table{}, err
		}
		rows := slices.Clone(t.rows)
		sortRows(rows, idx)
		return build(t.columns, rows), nil
	}
}

func sortRows(rows [][]Value, key []int) {
	slices.SortStableFunc(rows, func(a, b []Value) int {
		for _, k := range key {
			if c := Compare(a[k], b[k]); c != 0 {
				return c
			}
		}
		return 0
	})
}

// Tail keeps the last n rows.
func Tail(n int) Transform {
	return func(t Table) (Table, error) {
		if n < 0 {
			return Table{}, schemaMismatch("tail count %d is negative", n)
		}
		start := max(len(t.rows)-n, 0)
		return build(t.columns, t.rows[start:]), nil
	}
}

// Skip drops the first n rows.
func Skip(n int) Transform {
	return func(t Table) (Table, error) {
		if n < 0 {
			return Table{}, schemaMismatch("skip count %d is negative", n)
		}
		start := min(n, len(t.rows))
		return build(t.columns, t.rows[start:]), nil
	}
}

// Latest keeps the rows whose column equals the column maximum, e.g. the
// most recent date in a multi-region file.
func Latest(column string) Transform {
	return func(t Table) (Table, error) {
		c, err := t.ColumnIndex(column)
		if err != nil {
			return Table{}, err
		}
		var top Value
		for _, r := range t.rows {
			if Compare(r[c], top) > 0 {
				top = r[c]
			}
		}
		if top.IsNull() {
			return build(t.columns, nil), nil
		}
		return filterRows(t, func(r []Value) bool { return r[c].Equal(top) }), nil
	}
}

// RowID appends a 0-based row counter column.
func RowID(column string) Transform {
	return func(t Table) (Table, error) {
		if t.Has(column) {
			return Table{}, schemaMismatch("column %q already exists", column)
		}
		cols := append(slices.Clone(t.columns), column)
		rows := make([][]Value, len(t.rows))
		for i, r := range t.rows {
			out := make([]Value, len(r), len(r)+1)
			copy(out, r)
			rows[i] = append(out, Number(float64(i)))
		}
		return build(cols, rows), nil
	}
}

// ReplaceText replaces every occurrence of old with repl in the rendered text of
// the named columns. Non-null cells become text and are re-parsed as numbers
// when the replacement makes them numeric (decimal comma to dot).
func ReplaceText(columns []string, old, repl string) Transform {
	return mapCells(columns, func(v Value) (Value, error) {
		if v.IsNull() {
			return v, nil
		}
		s := strings.ReplaceAll(v.String(), old, repl)
		if n, ok := ParseNumber(s); ok && v.Kind() != KindDate {
			return n, nil
		}
		return Text(s), nil
	})
}

// MapValue substitutes cells that render exactly as from with the text to.
func MapValue(column, from, to string) Transform {
	return mapCells([]string{column}, func(v Value) (Value, error) {
		if v.String() == from && !v.IsNull() {
			return Text(to), nil
		}
		return v, nil
	})
}

// mapCells rewrites the cells of the named columns, copying each row.
func mapCells(columns []string, fn func(Value) (Value, error)) Transform {
	return func(t Table) (Table, error) {
		idx, err := t.indexes(columns)
		if err != nil {
			return Table{}, err
		}
		rows := make([][]Value, len(t.rows))
		for i, r := range t.rows {
			out := slices.Clone(r)
			for _, c := range idx {
				if out[c], err = fn(out[c]); err != nil {
					return Table{}, err
				}
			}
			rows[i] = out
		}
		return build(t.columns, rows), nil
	}
}

// withColumn returns t plus (or with replaced) column name holding cells.
func withColumn(t Table, name string, cells []Value) Table {
	if c, ok := t.index[name]; ok {
		rows := make([][]Value, len(t.rows))
		for i, r := range t.rows {
			out := slices.Clone(r)
			out[c] = cells[i]
			rows[i] = out
		}
		return build(t.columns, rows)
	}

	cols := append(slices.Clone(t.columns), name)
	rows := make([][]Value, len(t.rows))
	for i, r := range t.rows {
		out := make([]Value, len(r), len(r)+1)
		copy(out, r)
		rows[i] = append(out, cells[i])
	}
	return build(cols, rows)
}
