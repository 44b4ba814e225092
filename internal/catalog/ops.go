package catalog

// ops.go registers the step vocabulary of the catalog. Each op maps onto
// one tabular transform; join is the only op that reaches outside the
// current table.

import (
	"fmt"

	"github.com/JonMunkholm/covidstat/internal/aggregate"
	"github.com/JonMunkholm/covidstat/internal/cube"
	"github.com/JonMunkholm/covidstat/internal/tabular"
)

func init() {
	Register("filter_region", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "" && s.Value != "", "column and value"); err != nil {
			return nil, err
		}
		return tabular.FilterByCode(s.Column, s.Value), nil
	})
	Register("exclude", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "" && s.Value != "", "column and value"); err != nil {
			return nil, err
		}
		return tabular.Exclude(s.Column, s.Value), nil
	})
	Register("rename", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(len(s.Mapping) > 0, "mapping"); err != nil {
			return nil, err
		}
		return tabular.Rename(s.Mapping), nil
	})
	Register("drop", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(len(s.Columns) > 0, "columns"); err != nil {
			return nil, err
		}
		return tabular.Drop(s.Columns...), nil
	})
	Register("select", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(len(s.Columns) > 0, "columns"); err != nil {
			return nil, err
		}
		return tabular.Select(s.Columns...), nil
	})
	Register("sort", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(len(s.Columns) > 0, "columns"); err != nil {
			return nil, err
		}
		return tabular.SortBy(s.Columns...), nil
	})
	Register("unpivot", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(len(s.On) > 0 && len(s.Columns) > 0, "on and columns"); err != nil {
			return nil, err
		}
		variable := s.Column
		if variable == "" {
			variable = cube.DefaultMetric
		}
		return tabular.Unpivot(s.On, s.Columns, variable), nil
	})
	Register("delta", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "", "column"); err != nil {
			return nil, err
		}
		return tabular.AccumulateToDelta(s.Column, outputOr(s)), nil
	})
	Register("variation", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "", "column"); err != nil {
			return nil, err
		}
		return tabular.DailyVariationPercent(s.Column, outputOr(s)), nil
	})
	Register("shift_date", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "", "column"); err != nil {
			return nil, err
		}
		return tabular.ShiftDateBackOneDay(s.Column), nil
	})
	Register("latest", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "", "column"); err != nil {
			return nil, err
		}
		return tabular.Latest(s.Column), nil
	})
	Register("tail", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Count > 0, "a positive count"); err != nil {
			return nil, err
		}
		return tabular.Tail(s.Count), nil
	})
	Register("skip", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Count > 0, "a positive count"); err != nil {
			return nil, err
		}
		return tabular.Skip(s.Count), nil
	})
	Register("row_id", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "", "column"); err != nil {
			return nil, err
		}
		return tabular.RowID(s.Column), nil
	})
	Register("replace_text", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(len(s.Columns) > 0 && s.From != "", "columns and from"); err != nil {
			return nil, err
		}
		return tabular.ReplaceText(s.Columns, s.From, s.To), nil
	})
	Register("map_value", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "" && s.From != "", "column and from"); err != nil {
			return nil, err
		}
		return tabular.MapValue(s.Column, s.From, s.To), nil
	})
	Register("round", func(s Step, _ Env) (tabular.Transform, error) {
		if err := need(s.Column != "" && s.Places >= 0, "column and non-negative places"); err != nil {
			return nil, err
		}
		return tabular.Round(s.Column, s.Places), nil
	})
	Register("join", buildJoin)
}

// buildJoin left-joins the named series onto the current table.
func buildJoin(s Step, env Env) (tabular.Transform, error) {
	if err := need(len(s.Series) > 0 && len(s.On) > 0, "series and on"); err != nil {
		return nil, err
	}
	return func(t tabular.Table) (tabular.Table, error) {
		if env == nil {
			return tabular.Table{}, fmt.Errorf("%w: join has no series environment", ErrInvalidStep)
		}
		tables := []tabular.Table{t}
		for _, name := range s.Series {
			right, err := env.Series(name)
			if err != nil {
				return tabular.Table{}, err
			}
			tables = append(tables, right)
		}
		return aggregate.JoinOnKeys(tables, s.On)
	}, nil
}

func need(ok bool, what string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: needs %s", ErrInvalidStep, what)
}

func outputOr(s Step) string {
	if s.Output != "" {
		return s.Output
	}
	return s.Column
}
