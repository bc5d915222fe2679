// Package analysistest builds a small on-disk project used by the engine's
// tests: one monitored object, three rain gauges and an output series.
package analysistest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/catalog"
)

// Reference is the execution timestamp the fixture data is laid out around.
var Reference = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// Catalog ids of the fixture.
const (
	ProviderID       int64 = 1
	ObjectSeriesID   int64 = 1
	PluvioSeriesID   int64 = 2
	OutputSeriesID   int64 = 3
	OutputDataSetID  int64 = 31
	AnalysisID       int64 = 1
	DCPAnalysisID    int64 = 2
	DCPOutputDataSet int64 = 32
)

// ZonalScript computes the six zonal statistics of the rain gauges within
// 2 km of the monitored object.
const ZonalScript = `
buf = Buffer(BufferType.Out_union, 2., "km")
ids = dcp.zonal.influence.by_buffer("Pluvio", buf)
add_value("count", dcp.zonal.count("Pluvio", buf))
add_value("min", dcp.zonal.min("Pluvio", "pluvio", ids))
add_value("max", dcp.zonal.max("Pluvio", "pluvio", ids))
add_value("mean", dcp.zonal.mean("Pluvio", "pluvio", ids))
add_value("median", dcp.zonal.median("Pluvio", "pluvio", ids))
add_value("standard_deviation", dcp.zonal.standard_deviation("Pluvio", "pluvio", ids))
`

// HistoryScript sums up the last day of each station.
const HistoryScript = `
add_value("readings", dcp.history.count("Pluvio", "pluvio", "1d"))
add_value("max_1d", dcp.history.max("Pluvio", "pluvio", "1d"))
`

const serraGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"geocodigo":"SM01","nome":"Serra do Mar"},
  "geometry":{"type":"Polygon","coordinates":[[[-45.00,-23.00],[-44.99,-23.00],[-44.99,-22.99],[-45.00,-22.99],[-45.00,-23.00]]]}}
]}`

type gauge struct {
	id, file, lon string
	rows        string
}

// A sits inside the polygon, B about 500 m east of it and C about 3 km east.
var gauges = []gauge{
	{"A", "pcd_a.csv", "-44.995", "2024-03-10T10:00:00Z,5\n2024-03-10T11:00:00Z,10\n"},
	{"B", "pcd_b.csv", "-44.985", "2024-03-10T11:00:00Z,20\n"},
	{"C", "pcd_c.csv", "-44.960", "2024-03-10T11:00:00Z,30\n2024-03-10T13:00:00Z,99\n"},
}

// SerraDoMar writes the fixture files to a temporary directory and returns
// a catalog holding the zonal analysis (AnalysisID) and a DCP history
// analysis (DCPAnalysisID).
func SerraDoMar(t testing.TB) *catalog.Catalog {
	t.Helper()

	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	write("serra.geojson", serraGeoJSON)

	pluvio := &catalog.DataSeries{
		ID: PluvioSeriesID, ProviderID: ProviderID, Name: "Pluvio", Active: true,
		Semantics: catalog.Semantics{Code: "DCP-generic", Kind: catalog.SeriesDCP, Temporality: catalog.Dynamic, Format: catalog.FormatCSV},
		Schema:    []catalog.Attribute{{Name: "pluvio", Type: "DOUBLE"}},
	}
	for i, g := range gauges {
		write(g.file, "datetime,pluvio\n"+g.rows)
		pluvio.DataSets = append(pluvio.DataSets, catalog.DataSet{
			ID: 21 + int64(i),
			Format: map[string]string{
				"mask":      g.file,
				"id":        g.id,
				"latitude":  "-22.995",
				"longitude": g.lon,
				"fields":    `[{"property_name":"datetime","type":"DATETIME"}]`,
			},
		})
	}

	c := catalog.New()
	entities := []any{
		&catalog.Project{ID: 1, Name: "Serra do Mar", Active: true},
		&catalog.DataProvider{ID: ProviderID, ProjectID: 1, Name: "local", Kind: catalog.ProviderFile, URI: dir, Active: true},
		&catalog.DataSeries{
			ID: ObjectSeriesID, ProviderID: ProviderID, Name: "Serra do Mar", Active: true,
			Semantics: catalog.Semantics{Kind: catalog.SeriesGeometryObject, Temporality: catalog.Static, Format: catalog.FormatGeoJSON},
			Schema:    []catalog.Attribute{{Name: "geocodigo", Type: "TEXT"}, {Name: "nome", Type: "TEXT"}},
			DataSets:  []catalog.DataSet{{ID: 11, Format: map[string]string{"mask": "serra.geojson"}}},
		},
		pluvio,
		&catalog.DataSeries{
			ID: OutputSeriesID, ProviderID: ProviderID, Name: "zonal result", Active: true,
			Semantics: catalog.Semantics{Kind: catalog.SeriesAnalysisResult, Temporality: catalog.Dynamic, Format: catalog.FormatDatabase},
			DataSets:  []catalog.DataSet{{ID: OutputDataSetID}, {ID: DCPOutputDataSet}},
		},
		&catalog.Analysis{
			ID: AnalysisID, ProjectID: 1, Name: "Serra do Mar zonal", Active: true,
			Type: catalog.AnalysisMonitoredObject, Script: ZonalScript, ScriptLanguage: catalog.ScriptStarlark,
			DataSeries: []catalog.AnalysisDataSeries{
				{ID: 1, DataSeriesID: ObjectSeriesID, Type: catalog.RoleMonitoredObject, Metadata: map[string]string{"identifier": "geocodigo"}},
				{ID: 2, DataSeriesID: PluvioSeriesID, Type: catalog.RoleAdditionalData},
			},
			OutputDataSeriesID: OutputSeriesID, OutputDataSetID: OutputDataSetID,
		},
		&catalog.Analysis{
			ID: DCPAnalysisID, ProjectID: 1, Name: "Pluvio history", Active: true,
			Type: catalog.AnalysisDCP, Script: HistoryScript, ScriptLanguage: catalog.ScriptStarlark,
			DataSeries: []catalog.AnalysisDataSeries{
				{ID: 3, DataSeriesID: PluvioSeriesID, Type: catalog.RoleDCP},
			},
			OutputDataSeriesID: OutputSeriesID, OutputDataSetID: DCPOutputDataSet,
		},
	}
	for _, e := range entities {
		require.NoError(t, c.Add(e))
	}
	return c
}
