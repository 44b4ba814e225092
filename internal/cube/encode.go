package cube

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/covidstat/internal/tabular"
)

var (
	// ErrSparse: the rows do not cover every combination of categories.
	ErrSparse = errors.New("sparse cube")
	// ErrDuplicateCell: two rows address the same cube cell.
	ErrDuplicateCell = errors.New("duplicate cube cell")
)

// DefaultMetric is the dimension that carries measure names after unpivot.
const DefaultMetric = "Variables"

// Options controls dataset metadata.
type Options struct {
	Source  string          // attribution string
	Label   string          // dataset title
	Metric  string          // dimension flagged as role.metric; DefaultMetric when empty
	Units   map[string]Unit // per metric category
	Updated *time.Time
}

// Encode builds a dataset from a long-format table. Every column except
// value becomes a dimension, in column order. Rows must already be in the
// order categories should appear.
func Encode(t tabular.Table, value string, opts Options) (*Dataset, error) {
	vc, err := t.ColumnIndex(value)
	if err != nil {
		return nil, err
	}
	if t.Width() < 2 {
		return nil, fmt.Errorf("%w: a cube needs at least one dimension besides %q", tabular.ErrSchemaMismatch, value)
	}

	metric := opts.Metric
	if metric == "" {
		metric = DefaultMetric
	}

	var ids []string
	var dimCols []int
	for i, c := range t.Columns() {
		if i == vc {
			continue
		}
		ids = append(ids, c)
		dimCols = append(dimCols, i)
	}

	// Categories in first-appearance order, and each row's coordinates.
	index := make([]map[string]int, len(ids))
	cats := make([][]string, len(ids))
	for d := range ids {
		index[d] = make(map[string]int)
	}
	coords := make([][]int, t.Len())
	for r := 0; r < t.Len(); r++ {
		row := t.Row(r)
		coord := make([]int, len(ids))
		for d, c := range dimCols {
			key := row[c].String()
			pos, ok := index[d][key]
			if !ok {
				pos = len(cats[d])
				index[d][key] = pos
				cats[d] = append(cats[d], key)
			}
			coord[d] = pos
		}
		coords[r] = coord
	}

	size := make([]int, len(ids))
	total := 1
	for d := range ids {
		size[d] = len(cats[d])
		total *= size[d]
	}
	if t.Len() == 0 {
		total = 0
	}

	// Row-major strides over id order.
	stride := make([]int, len(ids))
	acc := 1
	for d := len(ids) - 1; d >= 0; d-- {
		stride[d] = acc
		acc *= size[d]
	}

	values := make(Cells, total)
	filled := make([]bool, total)
	for r, coord := range coords {
		pos := 0
		for d, c := range coord {
			pos += c * stride[d]
		}
		if filled[pos] {
			return nil, fmt.Errorf("%w: row %d repeats %s", ErrDuplicateCell, r, describe(ids, cats, coord))
		}
		filled[pos] = true
		v, _ := t.At(r, value)
		values[pos] = v
	}
	if t.Len() != total {
		return nil, fmt.Errorf("%w: %d rows for %s = %d cells", ErrSparse, t.Len(), sizeExpr(ids, size), total)
	}

	ds := &Dataset{
		Version: Version,
		Class:   "dataset",
		Label:   opts.Label,
		Source:  opts.Source,
		Updated: opts.Updated,
		ID:      ids,
		Size:    size,
		Value:   values,
	}
	for d, id := range ids {
		ds.Dimension = append(ds.Dimension, Dimension{
			ID:       id,
			Label:    id,
			Category: Category{Index: cats[d]},
		})
	}

	if m := slices.Index(ids, metric); m >= 0 {
		ds.Role = &Role{Metric: []string{metric}}
		if err := attachUnits(&ds.Dimension[m], opts.Units); err != nil {
			return nil, err
		}
	} else if len(opts.Units) > 0 {
		return nil, fmt.Errorf("%w: units given but there is no %q dimension", tabular.ErrSchemaMismatch, metric)
	}

	return ds, nil
}

// attachUnits copies units for the categories the dimension actually has.
// A unit for a category that is not there is an error: it means the
// catalog and the data disagree about what the artifact measures.
func attachUnits(d *Dimension, units map[string]Unit) error {
	if len(units) == 0 {
		return nil
	}
	var unknown []string
	for k := range units {
		if !slices.Contains(d.Category.Index, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("%w: unit for unknown %s categories: %s",
			tabular.ErrSchemaMismatch, d.ID, strings.Join(unknown, ", "))
	}
	d.Category.Unit = make(map[string]Unit, len(units))
	for k, u := range units {
		d.Category.Unit[k] = u
	}
	return nil
}

func sizeExpr(ids []string, size []int) string {
	parts := make([]string, len(ids))
	for i := range ids {
		parts[i] = fmt.Sprintf("%s(%d)", ids[i], size[i])
	}
	return strings.Join(parts, " x ")
}

func describe(ids []string, cats [][]string, coord []int) string {
	parts := make([]string, len(ids))
	for d, c := range coord {
		parts[d] = ids[d] + "=" + cats[d][c]
	}
	return strings.Join(parts, ", ")
}
