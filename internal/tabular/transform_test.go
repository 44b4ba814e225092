package tabular

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) Value {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return Date(t)
}

// regional mirrors the long per-region files: fecha,cod_ine,CCAA,total.
func regional() Table {
	return MustNew(
		[]string{"fecha", "cod_ine", "CCAA", "total"},
		[][]Value{
			{day("2020-03-01"), Number(6), Text("Cantabria"), Number(10)},
			{day("2020-03-01"), Number(7), Text("CyL"), Number(30)},
			{day("2020-03-01"), Number(0), Text("Total"), Number(40)},
			{day("2020-03-02"), Number(6), Text("Cantabria"), Number(15)},
			{day("2020-03-02"), Number(7), Text("CyL"), Number(31)},
			{day("2020-03-02"), Number(0), Text("Total"), Number(46)},
		},
	)
}

func TestFilterByCode(t *testing.T) {
	got, err := FilterByCode("cod_ine", "6")(regional())
	require.NoError(t, err)

	want := [][]string{
		{"fecha", "CCAA", "total"},
		{"2020-03-01", "Cantabria", "10"},
		{"2020-03-02", "Cantabria", "15"},
	}
	if diff := cmp.Diff(want, got.Records()); diff != "" {
		t.Errorf("FilterByCode mismatch (-want +got):\n%s", diff)
	}
}

func TestExclude(t *testing.T) {
	got, err := Exclude("CCAA", "Total")(regional())
	require.NoError(t, err)
	assert.Equal(t, 4, got.Len())

	_, err = Exclude("missing", "x")(regional())
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestRename(t *testing.T) {
	got, err := Rename(map[string]string{"CCAA": "ccaa", "total": "casos"})(regional())
	require.NoError(t, err)
	assert.Equal(t, []string{"fecha", "cod_ine", "ccaa", "casos"}, got.Columns())

	_, err = Rename(map[string]string{"nope": "x"})(regional())
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = Rename(map[string]string{"total": "fecha"})(regional())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDropIsStrict(t *testing.T) {
	got, err := Drop("cod_ine", "CCAA")(regional())
	require.NoError(t, err)
	assert.Equal(t, []string{"fecha", "total"}, got.Columns())

	_, err = Drop("cod_ine", "missing")(regional())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func TestSelect(t *testing.T) {
	got, err := Select("total", "fecha")(regional())
	require.NoError(t, err)
	assert.Equal(t, []string{"total", "fecha"}, got.Columns())

	_, err = Select("fecha", "fecha")(regional())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestTransformsDoNotMutateInput(t *testing.T) {
	in := regional()
	before := in.Records()

	_, err := Apply(in,
		Rename(map[string]string{"total": "casos"}),
		ShiftDateBackOneDay("fecha"),
		MapValue("CCAA", "CyL", "Castilla y León"),
		AccumulateToDelta("casos", "casos-diario"),
		RowID("id"),
	)
	require.NoError(t, err)

	if diff := cmp.Diff(before, in.Records()); diff != "" {
		t.Errorf("input table changed (-before +after):\n%s", diff)
	}
}

func TestUnpivot(t *testing.T) {
	wide := MustNew(
		[]string{"fecha", "casos", "altas"},
		[][]Value{
			{day("2020-03-02"), Number(15), Number(2)},
			{day("2020-03-01"), Number(10), Number(1)},
		},
	)

	got, err := Unpivot([]string{"fecha"}, []string{"casos", "altas"}, "Variables")(wide)
	require.NoError(t, err)

	want := [][]string{
		{"fecha", "Variables", "value"},
		{"2020-03-01", "altas", "1"},
		{"2020-03-01", "casos", "10"},
		{"2020-03-02", "altas", "2"},
		{"2020-03-02", "casos", "15"},
	}
	if diff := cmp.Diff(want, got.Records()); diff != "" {
		t.Errorf("Unpivot mismatch (-want +got):\n%s", diff)
	}
}

func TestUnpivotRoundTrip(t *testing.T) {
	wide := MustNew(
		[]string{"fecha", "ccaa", "casos", "uci"},
		[][]Value{
			{day("2020-03-01"), Text("Cantabria"), Number(10), Null()},
			{day("2020-03-01"), Text("Madrid"), Number(100), Number(4)},
			{day("2020-03-02"), Text("Cantabria"), Number(15), Number(1)},
		},
	)
	long, err := Unpivot([]string{"fecha", "ccaa"}, []string{"casos", "uci"}, "Variables")(wide)
	require.NoError(t, err)
	require.Equal(t, 6, long.Len())

	// Pivot back by (fecha, ccaa, variable) and compare every original cell.
	type key struct{ fecha, ccaa, variable string }
	pivot := make(map[key]Value, long.Len())
	for i := 0; i < long.Len(); i++ {
		r := long.Row(i)
		pivot[key{r[0].String(), r[1].String(), r[2].String()}] = r[3]
	}
	for i := 0; i < wide.Len(); i++ {
		r := wide.Row(i)
		for c, name := range []string{"casos", "uci"} {
			got, ok := pivot[key{r[0].String(), r[1].String(), name}]
			require.True(t, ok)
			assert.True(t, got.Equal(r[2+c]), "row %d %s: got %v want %v", i, name, got, r[2+c])
		}
	}
}

func TestUnpivotErrors(t *testing.T) {
	_, err := Unpivot([]string{"fecha"}, []string{"nope"}, "Variables")(regional())
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = Unpivot([]string{"fecha"}, nil, "Variables")(regional())
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = Unpivot([]string{"fecha"}, []string{"total"}, "fecha")(regional())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestTailSkipLatest(t *testing.T) {
	tbl := regional()

	last, err := Tail(1)(tbl)
	require.NoError(t, err)
	require.Equal(t, 1, last.Len())
	assert.Equal(t, "Total", last.Row(0)[2].String())

	all, err := Tail(100)(tbl)
	require.NoError(t, err)
	assert.Equal(t, tbl.Len(), all.Len())

	rest, err := Skip(4)(tbl)
	require.NoError(t, err)
	assert.Equal(t, 2, rest.Len())

	none, err := Skip(10)(tbl)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Len())

	latest, err := Latest("fecha")(tbl)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Len())
	for i := 0; i < latest.Len(); i++ {
		assert.Equal(t, "2020-03-02", latest.Row(i)[0].String())
	}
}

func TestRowIDAndReplaceText(t *testing.T) {
	points := MustNew(
		[]string{"nombre", "Latitud"},
		[][]Value{
			{Text("A"), Text("43,46")},
			{Text("B"), Null()},
		},
	)

	got, err := Apply(points, RowID("id"), ReplaceText([]string{"Latitud"}, ",", "."))
	require.NoError(t, err)

	want := [][]string{
		{"nombre", "Latitud", "id"},
		{"A", "43.46", "0"},
		{"B", "", "1"},
	}
	if diff := cmp.Diff(want, got.Records()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	lat, _ := got.At(0, "Latitud")
	assert.Equal(t, KindNumber, lat.Kind())

	_, err = RowID("nombre")(points)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestMapValue(t *testing.T) {
	tbl := MustNew([]string{"provincia"}, [][]Value{{Text("Santander")}, {Text("Madrid")}})
	got, err := MapValue("provincia", "Santander", "Cantabria")(tbl)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"provincia"}, {"Cantabria"}, {"Madrid"}}, got.Records())
}

func TestSortBy(t *testing.T) {
	got, err := SortBy("CCAA", "fecha")(regional())
	require.NoError(t, err)
	col, err := got.Column("CCAA")
	require.NoError(t, err)
	var names []string
	for _, v := range col {
		names = append(names, v.String())
	}
	assert.Equal(t, []string{"Cantabria", "Cantabria", "CyL", "CyL", "Total", "Total"}, names)
}

func TestNewRejectsBadShapes(t *testing.T) {
	_, err := New([]string{"a", "a"}, nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = New([]string{"a", "b"}, [][]Value{{Number(1)}})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
