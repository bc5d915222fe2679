package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/cmd/validate"
	"github.com/guianderson/terrama2/internal/conf"
)

const catalogDocument = `
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
    datasets:
      - id: 100
        format: {mask: serra.geojson}
analyses:
  - id: 1
    name: zonal
    type: MONITORED_OBJECT
    script_language: STARLARK
    script: |
      add_value("count", 1)
    data_series:
      - id: 1
        data_series_id: 10
        type: DATASERIES_MONITORED_OBJECT_TYPE
`

func TestValidateCommandReadsCatalogFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogDocument), 0o600))

	settings := &conf.Settings{}
	root := RootCommand(settings)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--catalog", path, "-o", "json"})
	err := root.Execute()

	assert.Equal(t, path, settings.Analysis.Catalog)

	var reports []validate.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, int64(1), reports[0].AnalysisID)
	if reports[0].Valid {
		assert.NoError(t, err)
	} else {
		assert.Error(t, err)
	}
}

func TestRunRequiresAnalysisFlag(t *testing.T) {
	root := RootCommand(&conf.Settings{})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})
	require.Error(t, root.Execute())
}

func TestSubcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "run", "validate"})
}
