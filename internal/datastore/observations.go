package datastore

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/guianderson/terrama2/internal/accessor"
)

// QueryObservations returns the rows of a dataset inside w, ordered by
// timestamp. LatestOnly reduction is left to the accessor.
func (s *Store) QueryObservations(ctx context.Context, dataSetID int64, w accessor.TimeWindow) ([]accessor.Observation, error) {
	q := s.DB.WithContext(ctx).Where("data_set_id = ?", dataSetID)
	if !w.End.IsZero() {
		q = q.Where("timestamp <= ?", w.End.UTC())
	}
	if !w.Start.IsZero() {
		if w.StartExclusive {
			q = q.Where("timestamp > ?", w.Start.UTC())
		} else {
			q = q.Where("timestamp >= ?", w.Start.UTC())
		}
	}

	var rows []ObservationRow
	if err := q.Order("timestamp, object_id").Find(&rows).Error; err != nil {
		return nil, dbError(err, "query_observations", "data_set_id", dataSetID)
	}

	out := make([]accessor.Observation, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		obs := accessor.Observation{
			ID:         row.ObjectID,
			DataSetID:  row.DataSetID,
			Timestamp:  row.Timestamp,
			Attributes: row.Attributes,
		}
		if row.Geometry != "" {
			geom, err := wkt.Unmarshal(row.Geometry)
			if err != nil {
				return nil, dbError(err, "decode_geometry", "observation_id", row.ID)
			}
			obs.Geometry = geom
		}
		out = append(out, obs)
	}
	return out, nil
}

// InsertObservations stores observations for a DATABASE-format dataset.
func (s *Store) InsertObservations(ctx context.Context, obs []accessor.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	rows := make([]ObservationRow, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, ObservationRow{
			DataSetID:  o.DataSetID,
			Timestamp:  o.Timestamp.UTC(),
			ObjectID:   o.ID,
			Geometry:   geometryWKT(o.Geometry),
			Attributes: o.Attributes,
		})
	}
	if err := s.DB.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return dbError(err, "insert_observations", "rows", len(rows))
	}
	return nil
}

func geometryWKT(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return wkt.MarshalString(g)
}
