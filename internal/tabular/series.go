package tabular

// series.go holds the transforms that look at neighbouring rows: first
// differences of cumulative counters, day-over-day variation, and the
// one-day label shift. They assume rows are already in date order; none of
// them sorts implicitly, so a caller can see exactly where ordering comes from.
//
// The first row has no predecessor and always gets a null result.

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// numbers extracts a numeric column; nulls stay null, anything else is a
// schema mismatch.
func numbers(t Table, column string) ([]Value, error) {
	cells, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	for i, v := range cells {
		if v.Kind() != KindNumber && !v.IsNull() {
			return nil, schemaMismatch("column %q row %d: want number, got %s %q", column, i, v.Kind(), v.String())
		}
	}
	return cells, nil
}

// AccumulateToDelta writes delta[i] = cumulative[i] - cumulative[i-1].
// Row 0, and any row where either operand is null, gets null.
func AccumulateToDelta(cumulative, delta string) Transform {
	return func(t Table) (Table, error) {
		cells, err := numbers(t, cumulative)
		if err != nil {
			return Table{}, err
		}
		out := make([]Value, len(cells))
		for i := 1; i < len(cells); i++ {
			cur, ok1 := cells[i].Float()
			prev, ok2 := cells[i-1].Float()
			if ok1 && ok2 {
				out[i] = Number(cur - prev)
			}
		}
		return withColumn(t, delta, out), nil
	}
}

// DailyVariationPercent writes output[i] = 100 * (v[i] - v[i-1]) / v[i-1]
// when v[i-1] > 0, and null otherwise. Row 0 gets null.
func DailyVariationPercent(column, output string) Transform {
	return func(t Table) (Table, error) {
		cells, err := numbers(t, column)
		if err != nil {
			return Table{}, err
		}
		out := make([]Value, len(cells))
		for i := 1; i < len(cells); i++ {
			cur, ok1 := cells[i].Float()
			prev, ok2 := cells[i-1].Float()
			if ok1 && ok2 && prev > 0 {
				out[i] = Number(100 * (cur - prev) / prev)
			}
		}
		return withColumn(t, output, out), nil
	}
}

// ShiftDateBackOneDay relabels each date as the previous calendar day.
// Upstream files stamp figures with the publication date, one day after
// the day they describe. Text cells in ISO form are accepted.
func ShiftDateBackOneDay(column string) Transform {
	return mapCells([]string{column}, func(v Value) (Value, error) {
		if v.IsNull() {
			return v, nil
		}
		d, ok := v.Time()
		if !ok {
			parsed, ok := ParseDate(v.String())
			if !ok {
				return Value{}, schemaMismatch("column %q: %q is not a date", column, v.String())
			}
			d, _ = parsed.Time()
		}
		return Date(d.AddDate(0, 0, -1)), nil
	})
}

// Round rounds a numeric column to places decimals, half to even, using
// exact decimal arithmetic so that 2.675 stays 2.68 rather than drifting
// through its binary approximation.
func Round(column string, places int32) Transform {
	return func(t Table) (Table, error) {
		if places < 0 {
			return Table{}, schemaMismatch("round places %d is negative", places)
		}
		cells, err := numbers(t, column)
		if err != nil {
			return Table{}, err
		}

		ctx := apd.BaseContext.WithPrecision(34)
		ctx.Rounding = apd.RoundHalfEven

		out := make([]Value, len(cells))
		for i, v := range cells {
			f, ok := v.Float()
			if !ok {
				continue
			}
			r, err := roundDecimal(ctx, f, places)
			if err != nil {
				return Table{}, fmt.Errorf("round %q row %d: %w", column, i, err)
			}
			out[i] = Number(r)
		}
		return withColumn(t, column, out), nil
	}
}

func roundDecimal(ctx *apd.Context, f float64, places int32) (float64, error) {
	d, _, err := apd.NewFromString(strconv.FormatFloat(f, 'f', -1, 64))
	if err != nil {
		return 0, err
	}
	var res apd.Decimal
	if _, err := ctx.Quantize(&res, d, -places); err != nil {
		return 0, err
	}
	return res.Float64()
}
