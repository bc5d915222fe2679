package operators

import (
	"fmt"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/accessor"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/geometry"
)

var reference = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// roughly 1 km square; station B sits about 500 m east of it, C about 3 km east
var serraDoMar = orb.Polygon{{{-45.00, -23.00}, {-44.99, -23.00}, {-44.99, -22.99}, {-45.00, -22.99}, {-45.00, -23.00}}}

type fakeBound map[string]*Series

func (b fakeBound) Lookup(name string) (*Series, error) {
	if s, ok := b[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownAlias)
}

func (fakeBound) Reference() time.Time { return reference }

func pluvioSeries() *Series {
	at := func(id string, lon float64, hoursAgo int, v any) accessor.Observation {
		return accessor.Observation{
			ID: id, Timestamp: reference.Add(-time.Duration(hoursAgo) * time.Hour),
			Geometry:   orb.Point{lon, -22.995},
			Attributes: map[string]any{"pluvio": v},
		}
	}
	rows := []accessor.Observation{
		at("A", -44.995, 0, 10.0),
		at("B", -44.985, 0, 20.0),
		at("C", -44.960, 0, 30.0),
		at("D", -44.996, 0, nil), // inside, reading missing
	}
	s := &Series{Name: "Pluvio", Kind: catalog.SeriesDCP, Role: catalog.RoleAdditionalData,
		Observations: &accessor.ObservationSet{Rows: rows}}
	for _, r := range rows {
		s.Candidates = append(s.Candidates, geometry.Candidate{ID: r.ID, Geometry: r.Geometry})
	}
	return s
}

func occurrenceSeries() *Series {
	occ := func(id string, lon float64, hoursAgo int, frp float64) accessor.Observation {
		return accessor.Observation{ID: id, Timestamp: reference.Add(-time.Duration(hoursAgo) * time.Hour),
			Geometry: orb.Point{lon, -22.995}, Attributes: map[string]any{"frp": frp}}
	}
	return &Series{Name: "focos", Kind: catalog.SeriesOccurrence, Observations: &accessor.ObservationSet{Rows: []accessor.Observation{
		occ("1", -44.995, 1, 5),
		occ("2", -44.994, 30, 7),
		occ("3", -44.960, 1, 9), // far outside
		occ("4", -44.993, -1, 100), // after the reference time
	}}}
}

func newLibrary(t *testing.T, typ catalog.AnalysisType, meta map[string]string) *Library {
	t.Helper()
	opts, err := OptionsFromAnalysis(&catalog.Analysis{Type: typ, Metadata: meta})
	require.NoError(t, err)
	return NewLibrary(fakeBound{"Pluvio": pluvioSeries(), "focos": occurrenceSeries()}, nil, opts)
}

func TestSerraDoMarZonalStatistics(t *testing.T) {
	t.Parallel()

	scope := newLibrary(t, catalog.AnalysisMonitoredObject, nil).NewScope(Row{ID: "serra", Geometry: serraDoMar})
	spec := BufferSpec{Type: geometry.BufferOutUnion, Distance: 2, Unit: "km"}

	ids, err := scope.InfluenceByBuffer("Pluvio", spec)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "D"}, ids)

	want := map[Statistic]float64{Count: 3, Min: 10, Max: 20, Mean: 15, Median: 15, StandardDeviation: 5}
	for stat, expected := range want {
		got, err := scope.DCPZonal(stat, "Pluvio", "pluvio", ids)
		require.NoError(t, err, stat)
		assert.InDelta(t, expected, got, 1e-9, stat)
	}
}

func TestZonalOverEmptySelection(t *testing.T) {
	t.Parallel()

	scope := newLibrary(t, catalog.AnalysisMonitoredObject, nil).NewScope(Row{ID: "serra", Geometry: serraDoMar})

	count, err := scope.DCPZonal(Count, "Pluvio", "pluvio", nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = scope.DCPZonal(Mean, "Pluvio", "pluvio", []string{"D"})
	assert.ErrorIs(t, err, ErrEmptyInput, "a station without numeric readings yields no values")
}

func TestInfluenceByRuleUsesAnalysisMetadata(t *testing.T) {
	t.Parallel()

	meta := map[string]string{"INFLUENCE_TYPE": "1", "INFLUENCE_RADIUS": "4", "INFLUENCE_RADIUS_UNIT": "km"}
	scope := newLibrary(t, catalog.AnalysisMonitoredObject, meta).NewScope(Row{ID: "serra", Geometry: serraDoMar})

	ids, err := scope.InfluenceByRule("Pluvio", BufferSpec{Type: geometry.BufferNone})
	require.NoError(t, err)
	assert.Len(t, ids, 4, "a 4 km radius reaches the far station")
	assert.Equal(t, "C", ids[len(ids)-1], "farthest station last")

	plain := newLibrary(t, catalog.AnalysisMonitoredObject, nil).NewScope(Row{ID: "serra", Geometry: serraDoMar})
	ids, err = plain.InfluenceByRule("Pluvio", BufferSpec{Type: geometry.BufferNone})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "D"}, ids, "without metadata by_rule falls back to containment")
}

func TestOccurrenceZonal(t *testing.T) {
	t.Parallel()

	scope := newLibrary(t, catalog.AnalysisMonitoredObject, nil).NewScope(Row{ID: "serra", Geometry: serraDoMar})

	count, err := scope.OccurrenceZonal(Count, "focos", "", "2d", BufferSpec{})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, count, 0)

	count, err = scope.OccurrenceZonal(Count, "focos", "", "1d", BufferSpec{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, count, 0)

	maxFRP, err := scope.OccurrenceZonal(Max, "focos", "frp", "", BufferSpec{Type: geometry.BufferOutUnion, Distance: 5, Unit: "km"})
	require.NoError(t, err)
	assert.InDelta(t, 9.0, maxFRP, 0, "unbounded window, wide buffer")

	_, err = scope.OccurrenceZonal(Count, "focos", "", "soon", BufferSpec{})
	assert.Error(t, err)

	_, err = scope.OccurrenceZonal(Count, "Pluvio", "", "1d", BufferSpec{})
	assert.Error(t, err, "wrong series kind")
}

func TestHistoryForCurrentStation(t *testing.T) {
	t.Parallel()

	series := pluvioSeries()
	series.Observations.Rows = append(series.Observations.Rows,
		accessor.Observation{ID: "A", Timestamp: reference.Add(-3 * time.Hour), Attributes: map[string]any{"pluvio": 4.0}},
		accessor.Observation{ID: "A", Timestamp: reference.Add(-72 * time.Hour), Attributes: map[string]any{"pluvio": 100.0}},
	)
	lib := NewLibrary(fakeBound{"pcd": series}, nil, Options{Type: catalog.AnalysisDCP})
	scope := lib.NewScope(Row{ID: "A"})

	total, err := scope.History(Count, "pcd", "pluvio", "1d")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, total, 0)

	avg, err := scope.History(Mean, "pcd", "pluvio", "1d")
	require.NoError(t, err)
	assert.InDelta(t, 7.0, avg, 1e-9)

	_, err = scope.DCPZonal(Count, "pcd", "pluvio", nil)
	assert.Error(t, err, "zonal operators are not offered to DCP analyses")
}

func TestEmitOverwritesAndIsolatesRows(t *testing.T) {
	t.Parallel()

	lib := newLibrary(t, catalog.AnalysisMonitoredObject, nil)
	first := lib.NewScope(Row{ID: "a"})
	require.NoError(t, first.Emit("count", 5))
	require.NoError(t, first.Emit("count", 7))
	assert.Equal(t, map[string]any{"count": 7}, first.Emitted())

	second := lib.NewScope(Row{ID: "b"})
	assert.Empty(t, second.Emitted())

	assert.Error(t, first.Emit("bad", []int{1}))
	assert.Error(t, first.Emit("", 1))
}

func TestUnknownAlias(t *testing.T) {
	t.Parallel()

	scope := newLibrary(t, catalog.AnalysisMonitoredObject, nil).NewScope(Row{ID: "serra", Geometry: serraDoMar})
	_, err := scope.DCPZonal(Count, "nope", "pluvio", nil)
	assert.ErrorIs(t, err, ErrUnknownAlias)
}
