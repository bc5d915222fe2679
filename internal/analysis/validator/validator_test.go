package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/analysis/analysistest"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/errors"
)

func fixtureAnalysis(t *testing.T, id int64) (*catalog.Catalog, *catalog.Analysis) {
	t.Helper()
	c := analysistest.SerraDoMar(t)
	a, err := c.Analysis(id)
	require.NoError(t, err)
	return c, a
}

func TestValidFixtures(t *testing.T) {
	t.Parallel()

	for _, id := range []int64{analysistest.AnalysisID, analysistest.DCPAnalysisID} {
		c, a := fixtureAnalysis(t, id)
		res := Validate(c, a)
		assert.True(t, res.Valid, "analysis %d: %v", id, res.Messages)
		assert.Empty(t, res.Messages)
		assert.NoError(t, res.Err())
	}
}

func TestValidationRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(a *catalog.Analysis)
		want   string
	}{
		{"empty script", func(a *catalog.Analysis) { a.Script = "  " }, "empty script"},
		{"unknown language", func(a *catalog.Analysis) { a.ScriptLanguage = "PYTHON" }, `unrecognized script language "PYTHON"`},
		{"missing data series", func(a *catalog.Analysis) { a.DataSeries[1].DataSeriesID = 404 }, "data series 404"},
		{"two monitored objects", func(a *catalog.Analysis) { a.DataSeries[1].Type = catalog.RoleMonitoredObject }, "exactly one"},
		{"no identifier", func(a *catalog.Analysis) { a.DataSeries[0].Metadata = nil }, `no "identifier" metadata`},
		{"identifier not in schema", func(a *catalog.Analysis) { a.DataSeries[0].Metadata["identifier"] = "gid" }, `"gid" not found`},
		{"missing output series", func(a *catalog.Analysis) { a.OutputDataSeriesID = 77 }, "output data series 77 not found"},
		{"missing output dataset", func(a *catalog.Analysis) { a.OutputDataSetID = 78 }, "output dataset 78 not found"},
		{"foreign output dataset", func(a *catalog.Analysis) { a.OutputDataSetID = 21 }, "belongs to data series 2"},
		{"duplicate alias", func(a *catalog.Analysis) {
			a.DataSeries[0].Alias, a.DataSeries[1].Alias = "x", "x"
		}, `name "x"`},
		{"alias shadows series name", func(a *catalog.Analysis) { a.DataSeries[0].Alias = "Pluvio" }, `name "Pluvio"`},
		{"same series twice without alias", func(a *catalog.Analysis) {
			a.DataSeries = append(a.DataSeries, catalog.AnalysisDataSeries{
				ID: 9, DataSeriesID: analysistest.PluvioSeriesID, Type: catalog.RoleAdditionalData,
			})
		}, `name "Pluvio"`},
		{"alias takes monitored object name", func(a *catalog.Analysis) { a.DataSeries[1].Alias = "monitored_object" }, `name "monitored_object"`},
		{"bad influence", func(a *catalog.Analysis) {
			a.Metadata = map[string]string{"INFLUENCE_TYPE": "9", "INFLUENCE_RADIUS": "1"}
		}, "invalid influence metadata"},
		{"bad lookback", func(a *catalog.Analysis) { a.Metadata = map[string]string{"LOOKBACK": "forever"} }, "invalid LOOKBACK"},
		{"bad incremental", func(a *catalog.Analysis) { a.Metadata = map[string]string{"INCREMENTAL": "sometimes"} }, "INCREMENTAL"},
		{"bad deviation", func(a *catalog.Analysis) { a.Metadata = map[string]string{"STANDARD_DEVIATION": "both"} }, "STANDARD_DEVIATION"},
		{"grid not executable", func(a *catalog.Analysis) { a.Type = catalog.AnalysisGrid }, "not executable"},
		{"unknown type", func(a *catalog.Analysis) { a.Type = "RASTER" }, "unknown analysis type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, a := fixtureAnalysis(t, analysistest.AnalysisID)
			tt.mutate(a)

			res := Validate(c, a)
			require.False(t, res.Valid)
			require.NotEmpty(t, res.Messages)
			assert.Contains(t, strings.Join(res.Messages, "\n"), tt.want)

			err := res.Err()
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestDCPAnalysisNeedsDCPRole(t *testing.T) {
	t.Parallel()

	c, a := fixtureAnalysis(t, analysistest.DCPAnalysisID)
	a.DataSeries[0].Type = catalog.RoleAdditionalData

	res := Validate(c, a)
	assert.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Messages, "\n"), "DCP_TYPE")
}

func TestMessagesAreDistinctAndAccumulate(t *testing.T) {
	t.Parallel()

	c, a := fixtureAnalysis(t, analysistest.AnalysisID)
	a.Script = ""
	a.OutputDataSeriesID = 77
	a.DataSeries[1].DataSeriesID = 404

	res := Validate(c, a)
	require.Len(t, res.Messages, 3)
	assert.NotEqual(t, res.Messages[0], res.Messages[1])
}

func TestValidateIsPure(t *testing.T) {
	t.Parallel()

	c, a := fixtureAnalysis(t, analysistest.AnalysisID)
	a.DataSeries[1].DataSeriesID = 404
	before := a.Clone()

	first := Validate(c, a)
	second := Validate(c, a)
	assert.Equal(t, first, second)
	assert.Equal(t, before, a, "validation does not mutate the analysis")
}

func TestByRuleWithoutInfluenceIsValid(t *testing.T) {
	t.Parallel()

	c, a := fixtureAnalysis(t, analysistest.AnalysisID)
	a.Script += "\nadd_value(\"ruled\", len(dcp.zonal.influence.by_rule(\"Pluvio\", buf)))\n"

	res := Validate(c, a)
	assert.True(t, res.Valid, "%v", res.Messages)
}

func TestNilAnalysis(t *testing.T) {
	t.Parallel()
	assert.False(t, Validate(catalog.New(), nil).Valid)
}
