package datastore

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/guianderson/terrama2/internal/analysis/result"
)

// WriteResult upserts one output record keyed by dataset, object and
// execution date.
func (s *Store) WriteResult(ctx context.Context, rec result.Record) error {
	row := ResultRow{
		DataSetID:     rec.DataSetID,
		ObjectID:      rec.ObjectID,
		ExecutionDate: rec.ExecutionDate.UTC(),
		AnalysisID:    rec.AnalysisID,
		Geometry:      geometryWKT(rec.Geometry),
		Attributes:    rec.Attributes,
	}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "data_set_id"}, {Name: "object_id"}, {Name: "execution_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"analysis_id", "geometry", "attributes"}),
	}).Create(&row).Error
	if err != nil {
		return dbError(err, "write_result",
			"data_set_id", rec.DataSetID,
			"object_id", rec.ObjectID)
	}
	return nil
}

// Results returns the rows written to a dataset for one execution date,
// ordered by object id.
func (s *Store) Results(ctx context.Context, dataSetID int64, executionDate time.Time) ([]ResultRow, error) {
	var rows []ResultRow
	err := s.DB.WithContext(ctx).
		Where("data_set_id = ? AND execution_date = ?", dataSetID, executionDate.UTC()).
		Order("object_id").
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "list_results", "data_set_id", dataSetID)
	}
	return rows, nil
}
