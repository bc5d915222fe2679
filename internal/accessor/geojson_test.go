package accessor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/catalog"
)

const municipios = `{"type":"FeatureCollection","features":[
 {"type":"Feature","id":1,"properties":{"geocodigo":"3550308","nome":"Sao Paulo"},
  "geometry":{"type":"Polygon","coordinates":[[[-46.8,-23.8],[-46.3,-23.8],[-46.3,-23.3],[-46.8,-23.3],[-46.8,-23.8]]]}},
 {"type":"Feature","properties":{"nome":"sem codigo"},
  "geometry":{"type":"Point","coordinates":[-45,-23]}}
]}`

func TestReadGeoJSONFeatures(t *testing.T) {
	t.Parallel()

	set := &catalog.DataSet{ID: 1, Format: map[string]string{}}

	features, err := readGeoJSONFeatures(strings.NewReader(municipios), set, "geocodigo")
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "3550308", features[0].ID)
	assert.Equal(t, "1", features[1].ID, "falls back to the position when neither property nor id exist")

	features, err = readGeoJSONFeatures(strings.NewReader(municipios), set, "")
	require.NoError(t, err)
	assert.Equal(t, "1", features[0].ID, "numeric feature id printed without fraction")
}

func TestReadGeoJSONObservations(t *testing.T) {
	t.Parallel()

	data := `{"type":"FeatureCollection","features":[
	 {"type":"Feature","properties":{"timestamp":"2024-03-10T10:00:00Z","frp":12.5},"geometry":{"type":"Point","coordinates":[-45,-23]}},
	 {"type":"Feature","properties":{"timestamp":"2024-03-10T11:00:00Z","frp":3},"geometry":{"type":"Point","coordinates":[-45.1,-23.1]}}
	]}`

	rows, err := readGeoJSONObservations(strings.NewReader(data), &catalog.DataSet{ID: 4, Format: map[string]string{}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "4:1", rows[1].ID)
	assert.Equal(t, 11, rows[1].Timestamp.Hour())

	_, err = readGeoJSONObservations(strings.NewReader(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}}]}`),
		&catalog.DataSet{ID: 4})
	assert.Error(t, err, "features without a timestamp are rejected")
}
