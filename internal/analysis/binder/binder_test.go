package binder

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/accessor"
	"github.com/guianderson/terrama2/internal/analysis/analysistest"
	"github.com/guianderson/terrama2/internal/analysis/operators"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
)

func newBinder(c *catalog.Catalog, acc Accessor) *Binder {
	if acc == nil {
		acc = accessor.New(accessor.Config{Catalog: c})
	}
	return New(c, acc, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
}

func TestBindMonitoredObjectAnalysis(t *testing.T) {
	t.Parallel()

	c := analysistest.SerraDoMar(t)
	a, err := c.Analysis(analysistest.AnalysisID)
	require.NoError(t, err)

	bc, err := newBinder(c, nil).Bind(context.Background(), a, analysistest.Reference, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Serra do Mar", MonitoredObjectName, "Pluvio"}, bc.Names())
	require.Len(t, bc.Rows, 1)
	assert.Equal(t, "SM01", bc.Rows[0].ID)

	pluvio, err := bc.Lookup("Pluvio")
	require.NoError(t, err)
	require.Len(t, pluvio.Observations.Rows, 3, "latest reading per station at or before the reference")
	for _, row := range pluvio.Observations.Rows {
		assert.False(t, row.Timestamp.After(analysistest.Reference))
	}
	assert.Len(t, pluvio.Candidates, 3)
	assert.Equal(t, analysistest.Reference.Add(-time.Hour), bc.DataTimestamp())

	mo, err := bc.Lookup(MonitoredObjectName)
	require.NoError(t, err)
	assert.Same(t, mo, mustLookup(t, bc, "Serra do Mar"))

	_, err = bc.Lookup("Temperatura")
	assert.ErrorIs(t, err, operators.ErrUnknownAlias)
}

func mustLookup(t *testing.T, bc *Context, name string) *operators.Series {
	t.Helper()
	s, err := bc.Lookup(name)
	require.NoError(t, err)
	return s
}

func TestBindDCPAnalysisRowsAreStations(t *testing.T) {
	t.Parallel()

	c := analysistest.SerraDoMar(t)
	a, err := c.Analysis(analysistest.DCPAnalysisID)
	require.NoError(t, err)

	bc, err := newBinder(c, nil).Bind(context.Background(), a, analysistest.Reference, nil)
	require.NoError(t, err)

	var ids []string
	for _, r := range bc.Rows {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)

	pluvio := mustLookup(t, bc, "Pluvio")
	assert.Len(t, pluvio.Observations.Rows, 4, "history analyses keep every reading up to the reference")
}

func TestBindUsesAlias(t *testing.T) {
	t.Parallel()

	c := analysistest.SerraDoMar(t)
	a, err := c.Analysis(analysistest.AnalysisID)
	require.NoError(t, err)
	a.DataSeries[1].Alias = "chuva"

	bc, err := newBinder(c, nil).Bind(context.Background(), a, analysistest.Reference, nil)
	require.NoError(t, err)
	_, err = bc.Lookup("chuva")
	require.NoError(t, err)
	_, err = bc.Lookup("Pluvio")
	assert.ErrorIs(t, err, operators.ErrUnknownAlias, "the alias replaces the series name")
}

type failingAccessor struct {
	Accessor
	failSeries int64
}

func (f failingAccessor) FetchObservations(ctx context.Context, id int64, w accessor.TimeWindow) (*accessor.ObservationSet, error) {
	if id == f.failSeries {
		return nil, errors.NewStd("provider offline")
	}
	return f.Accessor.FetchObservations(ctx, id, w)
}

func TestBindFailsWhenAnySeriesIsUnavailable(t *testing.T) {
	t.Parallel()

	c := analysistest.SerraDoMar(t)
	a, err := c.Analysis(analysistest.AnalysisID)
	require.NoError(t, err)

	acc := failingAccessor{Accessor: accessor.New(accessor.Config{Catalog: c}), failSeries: analysistest.PluvioSeriesID}
	bc, err := newBinder(c, acc).Bind(context.Background(), a, analysistest.Reference, nil)
	require.Error(t, err)
	assert.Nil(t, bc, "no partial context")
	assert.True(t, errors.IsCategory(err, errors.CategoryDataUnavailable))
	assert.Contains(t, err.Error(), "provider offline")
}

func TestBindCancelled(t *testing.T) {
	t.Parallel()

	c := analysistest.SerraDoMar(t)
	a, err := c.Analysis(analysistest.AnalysisID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newBinder(c, nil).Bind(ctx, a, analysistest.Reference, nil)
	require.Error(t, err)
}

func TestBindEmptyMonitoredObjects(t *testing.T) {
	t.Parallel()

	c := analysistest.SerraDoMar(t)
	a, err := c.Analysis(analysistest.DCPAnalysisID)
	require.NoError(t, err)

	// every reading is after this reference, so there is no station to evaluate
	early := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = newBinder(c, nil).Bind(context.Background(), a, early, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDataUnavailable))
}

func TestWindow(t *testing.T) {
	t.Parallel()

	ref := analysistest.Reference
	last := ref.Add(-6 * time.Hour)
	mo := &catalog.Analysis{Type: catalog.AnalysisMonitoredObject}

	tests := []struct {
		name    string
		meta    map[string]string
		typ     catalog.AnalysisType
		kind    catalog.SeriesKind
		lastRun *time.Time
		want    accessor.TimeWindow
	}{
		{"default station", nil, catalog.AnalysisMonitoredObject, catalog.SeriesDCP, nil, accessor.TimeWindow{End: ref, LatestOnly: true}},
		{"default occurrence", nil, catalog.AnalysisMonitoredObject, catalog.SeriesOccurrence, nil, accessor.TimeWindow{End: ref}},
		{"dcp analysis", nil, catalog.AnalysisDCP, catalog.SeriesDCP, nil, accessor.TimeWindow{End: ref}},
		{"lookback", map[string]string{"LOOKBACK": "2d"}, catalog.AnalysisMonitoredObject, catalog.SeriesDCP, &last, accessor.TimeWindow{Start: ref.Add(-48 * time.Hour), End: ref}},
		{"incremental", map[string]string{"INCREMENTAL": "true"}, catalog.AnalysisMonitoredObject, catalog.SeriesDCP, &last, accessor.TimeWindow{Start: last, StartExclusive: true, End: ref}},
		{"incremental first run", map[string]string{"INCREMENTAL": "true"}, catalog.AnalysisMonitoredObject, catalog.SeriesDCP, nil, accessor.TimeWindow{End: ref, LatestOnly: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := mo.Clone()
			a.Type, a.Metadata = tt.typ, tt.meta
			got, err := Window(a, tt.kind, ref, tt.lastRun)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Window(&catalog.Analysis{Metadata: map[string]string{"LOOKBACK": "ever"}}, catalog.SeriesDCP, ref, nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
