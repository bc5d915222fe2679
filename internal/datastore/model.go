// model.go defines the tables owned by the engine
package datastore

import "time"

// Run statuses stored in RunLog.Status.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// RunLog is one admitted execution. Its ID is the run token and grows
// monotonically.
type RunLog struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	AnalysisID    int64     `gorm:"index:idx_run_logs_analysis_status;not null"`
	Status        string    `gorm:"index:idx_run_logs_analysis_status;type:varchar(16);not null"`
	ExecutionID   string    `gorm:"type:varchar(36)"`
	ReferenceTime time.Time `gorm:"index"` // the execution's reference ("process") timestamp
	DataTimestamp *time.Time
	PreviousRun   *time.Time // reference time of the latest successful run before this one
	StartedAt     time.Time
	FinishedAt    *time.Time
	Message       string `gorm:"type:text"`
}

// ResultRow is one output record of an analysis run.
type ResultRow struct {
	ID            uint           `gorm:"primaryKey"`
	DataSetID     int64          `gorm:"uniqueIndex:idx_result_rows_key;not null"`
	ObjectID      string         `gorm:"uniqueIndex:idx_result_rows_key;type:varchar(255);not null"`
	ExecutionDate time.Time      `gorm:"uniqueIndex:idx_result_rows_key;not null"`
	AnalysisID    int64          `gorm:"index"`
	Geometry      string         `gorm:"type:text"` // WKT
	Attributes    map[string]any `gorm:"serializer:json"`
}

// ObservationRow is one observation of a DATABASE-format dataset.
type ObservationRow struct {
	ID         uint           `gorm:"primaryKey"`
	DataSetID  int64          `gorm:"index:idx_observation_rows_set_time;not null"`
	Timestamp  time.Time      `gorm:"index:idx_observation_rows_set_time;not null"`
	ObjectID   string         `gorm:"type:varchar(255)"`
	Geometry   string         `gorm:"type:text"` // WKT, empty for station series positioned by their dataset
	Attributes map[string]any `gorm:"serializer:json"`
}
