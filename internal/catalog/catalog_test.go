package catalog

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/errors"
)

func sampleSeries() *DataSeries {
	return &DataSeries{
		ID:         10,
		ProviderID: 1,
		Name:       "Serra do Mar",
		Semantics:  Semantics{Kind: SeriesDCP, Temporality: Dynamic, Format: FormatCSV},
		Schema:     []Attribute{{Name: "pluvio", Type: "DOUBLE"}},
		DataSets: []DataSet{
			{ID: 101, Format: map[string]string{"mask": "pcd_1.csv"}},
			{ID: 102, Format: map[string]string{"mask": "pcd_2.csv"}},
		},
	}
}

func TestAddAndGet(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Add(sampleSeries()))
	require.NoError(t, c.Add(Analysis{ID: 1, Name: "zonal", Metadata: map[string]string{"k": "v"}}))

	ds, err := c.DataSeries(10)
	require.NoError(t, err)
	assert.Equal(t, "Serra do Mar", ds.Name)
	assert.True(t, ds.HasAttribute("pluvio"))

	set, err := c.DataSet(102)
	require.NoError(t, err)
	assert.Equal(t, int64(10), set.DataSeriesID, "dataset inherits its owning series id")

	got, err := c.Get(KindAnalysis, 1)
	require.NoError(t, err)
	assert.Equal(t, "zonal", got.(*Analysis).Name)
}

func TestGetReturnsIndependentCopies(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Add(&Analysis{ID: 1, Metadata: map[string]string{"INFLUENCE_RADIUS": "2"}}))

	first, err := c.Analysis(1)
	require.NoError(t, err)
	first.Metadata["INFLUENCE_RADIUS"] = "99"

	second, err := c.Analysis(1)
	require.NoError(t, err)
	assert.Equal(t, "2", second.Metadata["INFLUENCE_RADIUS"])
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	c := New()
	for _, kind := range []Kind{KindProject, KindDataProvider, KindDataSeries, KindDataSet, KindAnalysis} {
		_, err := c.Get(kind, 42)
		require.Error(t, err, kind)
		assert.True(t, errors.IsNotFound(err), kind)
		assert.Contains(t, err.Error(), "42")
	}
}

func TestAddRejectsDatasetOwnedByAnotherSeries(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Add(sampleSeries()))

	other := sampleSeries()
	other.ID = 11
	err := c.Add(other)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestReplacingSeriesReindexesDatasets(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Add(sampleSeries()))

	updated := sampleSeries()
	updated.DataSets = updated.DataSets[:1]
	require.NoError(t, c.Add(updated))

	_, err := c.DataSet(102)
	assert.True(t, errors.IsNotFound(err))
}

func TestAnalysisOutputSeries(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Add(sampleSeries()))
	require.NoError(t, c.Add(&DataSeries{
		ID: 20, Name: "zonal output",
		Semantics: Semantics{Kind: SeriesAnalysisResult, Temporality: Dynamic},
		DataSets:  []DataSet{{ID: 201}},
	}))
	require.NoError(t, c.Add(&DataSeries{
		ID: 30, Name: "static output",
		Semantics: Semantics{Temporality: Static},
		DataSets:  []DataSet{{ID: 301}},
	}))
	require.NoError(t, c.Add(&Analysis{ID: 1, OutputDataSeriesID: 20, OutputDataSetID: 201}))
	require.NoError(t, c.Add(&Analysis{ID: 2, OutputDataSeriesID: 30, OutputDataSetID: 301}))

	out := c.AnalysisOutputSeries()
	require.Len(t, out, 1)
	assert.Equal(t, int64(20), out[0].ID)
}

func TestConcurrentReadsDuringAdd(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Add(sampleSeries()))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range 100 {
				if i%4 == 0 {
					_ = c.Add(&Analysis{ID: int64(i + 1)})
					continue
				}
				_, _ = c.DataSeries(10)
				_ = c.Analyses()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, c.Analyses(), 2)
}

const sampleDocument = `
projects:
  - id: 1
    name: Serra do Mar
    active: true
providers:
  - id: 1
    project_id: 1
    name: local files
    kind: FILE
    uri: file:///data
    active: true
data_series:
  - id: 10
    provider_id: 1
    name: Serra do Mar
    semantics: {kind: GEOMETRIC_OBJECT, temporality: STATIC, format: GEOJSON}
    schema: [{name: fid, type: INTEGER}]
    datasets:
      - id: 100
        format: {mask: serra.geojson}
analyses:
  - id: 1
    name: zonal pluvio
    type: MONITORED_OBJECT
    script_language: STARLARK
    script: |
      add_value("count", 1)
    metadata: {INFLUENCE_TYPE: "1"}
    data_series:
      - id: 1
        data_series_id: 10
        type: DATASERIES_MONITORED_OBJECT_TYPE
        metadata: {identifier: fid}
`

func TestLoadDocument(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.Load(strings.NewReader(sampleDocument)))

	a, err := c.Analysis(1)
	require.NoError(t, err)
	assert.Equal(t, AnalysisMonitoredObject, a.Type)
	assert.Equal(t, ScriptStarlark, a.ScriptLanguage)
	require.Len(t, a.DataSeries, 1)
	assert.Equal(t, "fid", a.DataSeries[0].Metadata[MetaIdentifier])
	assert.Contains(t, a.Script, "add_value")

	p, err := c.DataProvider(1)
	require.NoError(t, err)
	assert.Equal(t, ProviderFile, p.Kind)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	err := New().Load(strings.NewReader("analyses:\n  - id: 1\n    scirpt: x\n"))
	require.Error(t, err)
}

func TestBindingNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry AnalysisDataSeries
		want  []string
	}{
		{"series name", AnalysisDataSeries{Type: RoleAdditionalData}, []string{"Pluvio"}},
		{"alias wins", AnalysisDataSeries{Type: RoleAdditionalData, Alias: "rain"}, []string{"rain"}},
		{"monitored object", AnalysisDataSeries{Type: RoleMonitoredObject}, []string{"Pluvio", MonitoredObjectName}},
		{"monitored object aliased to its own name", AnalysisDataSeries{Type: RoleMonitoredObject, Alias: MonitoredObjectName}, []string{MonitoredObjectName}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.entry.BindingNames("Pluvio"))
		})
	}
}
