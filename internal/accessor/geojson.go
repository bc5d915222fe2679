package accessor

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/guianderson/terrama2/internal/catalog"
)

const defaultTimestampProperty = "timestamp"

func decodeFeatureCollection(r io.Reader, setID int64) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dataset %d: %w", setID, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %d: decode geojson: %w", setID, err)
	}
	return fc, nil
}

// featureID picks the identifier property when given, then the feature id,
// then fallback.
func featureID(f *geojson.Feature, identifier, fallback string) string {
	if identifier != "" {
		if v, ok := f.Properties[identifier]; ok && v != nil {
			return formatID(v)
		}
	}
	if f.ID != nil {
		return formatID(f.ID)
	}
	return fallback
}

func formatID(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		// JSON numbers decode as float64; integral ids print without a fraction
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// readGeoJSONFeatures parses a static feature collection.
func readGeoJSONFeatures(r io.Reader, set *catalog.DataSet, identifier string) ([]Feature, error) {
	fc, err := decodeFeatureCollection(r, set.ID)
	if err != nil {
		return nil, err
	}
	if identifier == "" {
		identifier = set.Format[FormatIdentifier]
	}

	features := make([]Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("dataset %d: feature %d has no geometry", set.ID, i)
		}
		features = append(features, Feature{
			ID:         featureID(f, identifier, strconv.Itoa(i)),
			Geometry:   f.Geometry,
			Attributes: map[string]any(f.Properties),
		})
	}
	return features, nil
}

// readGeoJSONObservations parses a dynamic feature collection where every
// feature carries its timestamp as a property.
func readGeoJSONObservations(r io.Reader, set *catalog.DataSet) ([]Observation, error) {
	fc, err := decodeFeatureCollection(r, set.ID)
	if err != nil {
		return nil, err
	}

	tsProperty := set.Format[FormatTimestampProperty]
	if tsProperty == "" {
		tsProperty = defaultTimestampProperty
	}
	tsLayout := set.Format[FormatTimestampFormat]
	tz := time.UTC
	if v := set.Format[FormatTimezone]; v != "" {
		if tz, err = parseTimezone(v); err != nil {
			return nil, fmt.Errorf("dataset %d: %w", set.ID, err)
		}
	}

	rows := make([]Observation, 0, len(fc.Features))
	for i, f := range fc.Features {
		raw, ok := f.Properties[tsProperty].(string)
		if !ok {
			return nil, fmt.Errorf("dataset %d: feature %d has no %q string property", set.ID, i, tsProperty)
		}
		ts, err := parseTimestamp(raw, tsLayout, tz)
		if err != nil {
			return nil, fmt.Errorf("dataset %d: feature %d: %w", set.ID, i, err)
		}
		rows = append(rows, Observation{
			ID:         featureID(f, set.Format[FormatIdentifier], fmt.Sprintf("%d:%d", set.ID, i)),
			DataSetID:  set.ID,
			Timestamp:  ts,
			Geometry:   f.Geometry,
			Attributes: map[string]any(f.Properties),
		})
	}
	return rows, nil
}
