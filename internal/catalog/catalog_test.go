package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/covidstat/internal/cube"
	"github.com/JonMunkholm/covidstat/internal/tabular"
)

func TestOpsRegistered(t *testing.T) {
	want := []string{
		"delta", "drop", "exclude", "filter_region", "join", "latest", "map_value",
		"rename", "replace_text", "round", "row_id", "select", "shift_date", "skip",
		"sort", "tail", "unpivot", "variation",
	}
	if diff := cmp.Diff(want, Ops()); diff != "" {
		t.Errorf("registered ops (-want +got):\n%s", diff)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("drop", func(Step, Env) (tabular.Transform, error) { return nil, nil })
	})
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	outputs := c.Outputs()
	assert.Len(t, outputs, 38)
	assert.Contains(t, outputs, "casos_nacional_diario.json-stat")
	assert.Contains(t, outputs, "todos_cantabria.json-stat")
	assert.Contains(t, outputs, "casos_cantabria_espana.json-stat")
	assert.NotEmpty(t, c.Metadata.Source)

	specs := c.SourceSpecs()
	require.Len(t, specs, 10)
	assert.Equal(t, "nacional_covid19.csv", specs[0].File)
}

func TestDefaultCatalogDailyUnitsMatchTheirOwnMetric(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	var checked int
	for _, a := range c.Artifacts {
		if !strings.HasSuffix(a.Output, "_diario.json-stat") || len(a.Metrics) != 1 {
			continue
		}
		metric := a.Metrics[0]
		u, ok := a.Units[metric]
		require.True(t, ok, "%s has no unit for %s", a.Output, metric)
		assert.Equal(t, cube.Unit{Decimals: 0, Label: "Número de personas"}, u, a.Output)
		checked++
	}
	assert.Equal(t, 9, checked)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
sources:
  - {name: nacional, file: nacional_covid19.csv}
artifacts:
  - output: casos.json-stat
    from: nacional
    dimensions: [fecha]
    metrics: [casos]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"casos.json-stat"}, c.Outputs())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestParseRejects(t *testing.T) {
	const head = `
sources:
  - {name: nacional, file: nacional_covid19.csv}
`
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "unknown key",
			doc:  head + "artefacts: []\n",
			want: ErrInvalidCatalog,
		},
		{
			name: "unknown op",
			doc: head + `
artifacts:
  - {output: a.json-stat, from: nacional, dimensions: [fecha], metrics: [casos], steps: [{op: pivot}]}
`,
			want: ErrUnknownOp,
		},
		{
			name: "step without its parameter",
			doc: head + `
artifacts:
  - {output: a.json-stat, from: nacional, dimensions: [fecha], metrics: [casos], steps: [{op: drop}]}
`,
			want: ErrInvalidStep,
		},
		{
			name: "unknown from",
			doc: head + `
artifacts:
  - {output: a.json-stat, from: regional, dimensions: [fecha], metrics: [casos]}
`,
			want: ErrUnknownSeries,
		},
		{
			name: "unknown join series",
			doc: head + `
artifacts:
  - output: a.json-stat
    from: nacional
    dimensions: [fecha]
    metrics: [casos]
    steps: [{op: join, series: [cantabria], on: [fecha]}]
`,
			want: ErrUnknownSeries,
		},
		{
			name: "cycle",
			doc: head + `
series:
  a: {from: b}
  b:
    from: nacional
    steps: [{op: join, series: [a], on: [fecha]}]
artifacts: []
`,
			want: ErrCycle,
		},
		{
			name: "duplicate output",
			doc: head + `
artifacts:
  - {output: a.json-stat, from: nacional, dimensions: [fecha], metrics: [casos]}
  - {output: a.json-stat, from: nacional, dimensions: [fecha], metrics: [altas]}
`,
			want: ErrInvalidCatalog,
		},
		{
			name: "bad extension",
			doc: head + `
artifacts:
  - {output: a.json, from: nacional, dimensions: [fecha], metrics: [casos]}
`,
			want: ErrInvalidCatalog,
		},
		{
			name: "unit for another metric",
			doc: head + `
artifacts:
  - output: a.json-stat
    from: nacional
    dimensions: [fecha]
    metrics: [casos]
    units: {fallecidos: {decimals: 0}}
`,
			want: ErrInvalidCatalog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

// ----------------------------------------------------------------------------
// Resolver
// ----------------------------------------------------------------------------

func date(s string) tabular.Value {
	t, err := time.Parse(tabular.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return tabular.Date(t)
}

func regionalSource(total ...float64) tabular.Table {
	days := []string{"2020-03-02", "2020-03-03", "2020-03-04"}
	var rows [][]tabular.Value
	for i, d := range days {
		rows = append(rows,
			[]tabular.Value{date(d), tabular.Number(6), tabular.Text("Cantabria"), tabular.Number(total[i])},
			[]tabular.Value{date(d), tabular.Number(13), tabular.Text("Madrid"), tabular.Number(total[i] * 10)},
		)
	}
	return tabular.MustNew([]string{"fecha", "cod_ine", "CCAA", "total"}, rows)
}

func TestResolverBuildsCantabriaArtifacts(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	r := NewResolver(c, map[string]tabular.Table{
		"casos":      regionalSource(10, 15, 23),
		"altas":      regionalSource(1, 2, 4),
		"fallecidos": regionalSource(0, 1, 1),
		"uci":        regionalSource(1, 1, 2),
	})

	byName := make(map[string]Artifact)
	for _, a := range c.Artifacts {
		byName[a.Output] = a
	}

	daily, err := r.Build(byName["casos_cantabria_diario.json-stat"])
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"fecha", "Variables", "value"},
		{"2020-03-01", "casos", ""},
		{"2020-03-02", "casos", "5"},
		{"2020-03-03", "casos", "8"},
	}, daily.Records())

	all, err := r.Build(byName["todos_cantabria.json-stat"])
	require.NoError(t, err)
	assert.Equal(t, 12, all.Len(), "3 days x 4 variables")
	assert.Equal(t, []string{"2020-03-01", "altas", "1"}, all.Records()[1])

	ds, err := cube.Encode(all, tabular.ValueColumn, cube.Options{Units: byName["todos_cantabria.json-stat"].Units})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, ds.Size)
}

func TestCantabriaSeriesKeepOnlyDateAndCounter(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	r := NewResolver(c, map[string]tabular.Table{
		"casos":      regionalSource(10, 15, 23),
		"altas":      regionalSource(1, 2, 4),
		"fallecidos": regionalSource(0, 1, 1),
		"uci":        regionalSource(1, 1, 2),
	})

	for _, name := range []string{"casos", "altas", "fallecidos", "uci"} {
		t.Run(name, func(t *testing.T) {
			s, err := r.Series("cantabria_" + name)
			require.NoError(t, err)
			assert.Equal(t, []string{"fecha", name + "-acumulado"}, s.Columns())
			assert.Equal(t, 3, s.Len())
		})
	}
}

func TestResolverMemoizesSeries(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	r := NewResolver(c, map[string]tabular.Table{"casos": regionalSource(10, 15, 23)})

	first, err := r.Series("cantabria_casos")
	require.NoError(t, err)
	second, err := r.Series("cantabria_casos")
	require.NoError(t, err)
	assert.Equal(t, first.Records(), second.Records())
	assert.Len(t, r.memo, 1)
}

func TestResolverReportsMissingSourceOnce(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	r := NewResolver(c, map[string]tabular.Table{})

	_, err = r.Series("cantabria_casos")
	assert.ErrorIs(t, err, ErrUnknownSeries)
	_, err = r.Series("cantabria_casos")
	assert.ErrorIs(t, err, ErrUnknownSeries)
	assert.Len(t, r.failed, 1)
}

func TestResolverStepErrorNamesStep(t *testing.T) {
	c := &Catalog{
		Series: map[string]Series{
			"s": {From: "src", Steps: []Step{{Op: "drop", Columns: []string{"nope"}}}},
		},
	}
	r := NewResolver(c, map[string]tabular.Table{"src": regionalSource(1, 2, 3)})

	_, err := r.Series("s")
	require.Error(t, err)
	assert.ErrorIs(t, err, tabular.ErrColumnNotFound)
	assert.Contains(t, err.Error(), "series s step 1 (drop nope)")
}

func TestResolverDetectsCycleAtRunTime(t *testing.T) {
	// Built directly, bypassing Validate.
	c := &Catalog{
		Series: map[string]Series{
			"a": {From: "b"},
			"b": {From: "a"},
		},
	}
	_, err := NewResolver(c, nil).Series("a")
	assert.ErrorIs(t, err, ErrCycle)
}
