package catalog

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/covidstat/internal/cube"
	"github.com/JonMunkholm/covidstat/internal/tabular"
)

// Resolver evaluates series and artifacts against one run's source tables.
// Each series is computed at most once; its result (or its error) is
// reused by every artifact that refers to it.
type Resolver struct {
	cat     *Catalog
	sources map[string]tabular.Table
	memo    map[string]tabular.Table
	failed  map[string]error
	active  []string
}

// NewResolver binds a catalog to loaded source tables.
func NewResolver(c *Catalog, sources map[string]tabular.Table) *Resolver {
	return &Resolver{
		cat:     c,
		sources: sources,
		memo:    make(map[string]tabular.Table),
		failed:  make(map[string]error),
	}
}

// Series returns a source table or an evaluated named series.
func (r *Resolver) Series(name string) (tabular.Table, error) {
	if t, ok := r.sources[name]; ok {
		return t, nil
	}
	if t, ok := r.memo[name]; ok {
		return t, nil
	}
	if err, ok := r.failed[name]; ok {
		return tabular.Table{}, err
	}

	s, ok := r.cat.Series[name]
	if !ok {
		return tabular.Table{}, fmt.Errorf("%w: %q", ErrUnknownSeries, name)
	}
	for _, a := range r.active {
		if a == name {
			return tabular.Table{}, fmt.Errorf("%w: %s -> %s", ErrCycle, strings.Join(r.active, " -> "), name)
		}
	}

	r.active = append(r.active, name)
	t, err := r.chain("series "+name, s.From, s.Steps)
	r.active = r.active[:len(r.active)-1]

	if err != nil {
		r.failed[name] = err
		return tabular.Table{}, err
	}
	r.memo[name] = t
	return t, nil
}

// Build runs an artifact's chain and reshapes the result to long form:
// the dimension columns, a Variables column naming the metric, and value.
func (r *Resolver) Build(a Artifact) (tabular.Table, error) {
	t, err := r.chain(a.Output, a.From, a.Steps)
	if err != nil {
		return tabular.Table{}, err
	}
	long, err := tabular.Unpivot(a.Dimensions, a.Metrics, cube.DefaultMetric)(t)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("%s: reshape: %w", a.Output, err)
	}
	return long, nil
}

func (r *Resolver) chain(owner, from string, steps []Step) (tabular.Table, error) {
	t, err := r.Series(from)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("%s: %w", owner, err)
	}
	for i, s := range steps {
		fn, err := s.Compile(r)
		if err != nil {
			return tabular.Table{}, fmt.Errorf("%s step %d: %w", owner, i+1, err)
		}
		if t, err = fn(t); err != nil {
			return tabular.Table{}, fmt.Errorf("%s step %d (%s): %w", owner, i+1, s, err)
		}
	}
	return t, nil
}
