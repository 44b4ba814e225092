// Package aggregate combines single-metric series into one wide table.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/covidstat/internal/tabular"
)

// JoinOnKeys left-joins tables[1:] onto tables[0] using the key columns.
//
// Every row of the first table is kept, in order. Right-hand rows without a
// match contribute nulls. Preconditions, checked before any row is joined:
//   - every table carries every key column (tabular.ErrColumnNotFound)
//   - non-key column names are unique across all inputs
//     (tabular.ErrSchemaMismatch), so results never need suffix renaming
//   - right-hand tables hold at most one row per key (tabular.ErrDuplicateKey)
func JoinOnKeys(tables []tabular.Table, keys []string) (tabular.Table, error) {
	if len(tables) == 0 {
		return tabular.Table{}, fmt.Errorf("%w: join needs at least one table", tabular.ErrSchemaMismatch)
	}
	if len(keys) == 0 {
		return tabular.Table{}, fmt.Errorf("%w: join needs at least one key column", tabular.ErrSchemaMismatch)
	}
	if err := checkColumns(tables, keys); err != nil {
		return tabular.Table{}, err
	}

	left := tables[0]
	for i, right := range tables[1:] {
		joined, err := leftJoin(left, right, keys)
		if err != nil {
			return tabular.Table{}, fmt.Errorf("join input %d: %w", i+1, err)
		}
		left = joined
	}
	return left, nil
}

func checkColumns(tables []tabular.Table, keys []string) error {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	owner := make(map[string]int)
	for i, t := range tables {
		for _, k := range keys {
			if !t.Has(k) {
				return fmt.Errorf("join input %d: %w: key %s", i, tabular.ErrColumnNotFound, k)
			}
		}
		for _, c := range t.Columns() {
			if isKey[c] {
				continue
			}
			if prev, dup := owner[c]; dup {
				return fmt.Errorf("%w: column %q appears in join inputs %d and %d; rename before joining",
					tabular.ErrSchemaMismatch, c, prev, i)
			}
			owner[c] = i
		}
	}
	return nil
}

// keyOf renders the key cells of a row as one lookup string.
// The unit separator cannot occur in CSV cell text.
func keyOf(row []tabular.Value, idx []int) string {
	parts := make([]string, len(idx))
	for i, c := range idx {
		v := row[c]
		parts[i] = v.Kind().String() + ":" + v.String()
	}
	return strings.Join(parts, "\x1f")
}

func positions(t tabular.Table, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		c, err := t.ColumnIndex(n)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func leftJoin(left, right tabular.Table, keys []string) (tabular.Table, error) {
	lk, err := positions(left, keys)
	if err != nil {
		return tabular.Table{}, err
	}
	rk, err := positions(right, keys)
	if err != nil {
		return tabular.Table{}, err
	}

	isKey := make(map[int]bool, len(rk))
	for _, c := range rk {
		isKey[c] = true
	}
	rightCols := right.Columns()
	var carry []int
	for i := range rightCols {
		if !isKey[i] {
			carry = append(carry, i)
		}
	}

	lookup := make(map[string]int, right.Len())
	for i := 0; i < right.Len(); i++ {
		k := keyOf(right.Row(i), rk)
		if prev, dup := lookup[k]; dup {
			return tabular.Table{}, fmt.Errorf("%w: rows %d and %d share key %s",
				tabular.ErrDuplicateKey, prev, i, strings.ReplaceAll(k, "\x1f", ", "))
		}
		lookup[k] = i
	}

	cols := left.Columns()
	for _, c := range carry {
		cols = append(cols, rightCols[c])
	}

	rows := make([][]tabular.Value, left.Len())
	for i := range rows {
		row := left.Row(i)
		out := make([]tabular.Value, len(row), len(cols))
		copy(out, row)
		if j, ok := lookup[keyOf(row, lk)]; ok {
			match := right.Row(j)
			for _, c := range carry {
				out = append(out, match[c])
			}
		} else {
			for range carry {
				out = append(out, tabular.Null())
			}
		}
		rows[i] = out
	}
	return tabular.New(cols, rows)
}
