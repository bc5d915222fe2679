package datastore

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
)

// Start records an admitted execution and returns its run token.
func (s *Store) Start(ctx context.Context, analysisID int64, executionID string, reference time.Time) (int64, error) {
	run := RunLog{
		AnalysisID:    analysisID,
		Status:        StatusRunning,
		ExecutionID:   executionID,
		ReferenceTime: reference.UTC(),
		StartedAt:     time.Now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return 0, dbError(err, "start_run", "analysis_id", analysisID)
	}
	return int64(run.ID), nil
}

// Done closes a run. dataTimestamp is the newest observation the run
// consumed and may be zero; previousRun is nil on a first run.
func (s *Store) Done(ctx context.Context, token int64, success bool, dataTimestamp time.Time, previousRun *time.Time, message string) error {
	status := StatusFailed
	if success {
		status = StatusSuccess
	}
	updates := map[string]any{
		"status":      status,
		"finished_at": time.Now().UTC(),
		"message":     message,
	}
	if !dataTimestamp.IsZero() {
		updates["data_timestamp"] = dataTimestamp.UTC()
	}
	if previousRun != nil {
		updates["previous_run"] = previousRun.UTC()
	}

	res := s.DB.WithContext(ctx).Model(&RunLog{}).Where("id = ?", token).Updates(updates)
	if res.Error != nil {
		return dbError(res.Error, "finish_run", "run_token", token)
	}
	if res.RowsAffected == 0 {
		return notFoundError("run", token)
	}
	return nil
}

// LastProcessTimestamp returns the reference time of the analysis' latest
// successful run, or nil when it never succeeded.
func (s *Store) LastProcessTimestamp(ctx context.Context, analysisID int64) (*time.Time, error) {
	run, err := s.lastSuccess(ctx, analysisID)
	if err != nil || run == nil {
		return nil, err
	}
	ts := run.ReferenceTime
	return &ts, nil
}

// LastDataTimestamp returns the newest data timestamp consumed by the
// analysis' latest successful run, or nil when unknown.
func (s *Store) LastDataTimestamp(ctx context.Context, analysisID int64) (*time.Time, error) {
	run, err := s.lastSuccess(ctx, analysisID)
	if err != nil || run == nil {
		return nil, err
	}
	return run.DataTimestamp, nil
}

func (s *Store) lastSuccess(ctx context.Context, analysisID int64) (*RunLog, error) {
	var run RunLog
	err := s.DB.WithContext(ctx).
		Where("analysis_id = ? AND status = ?", analysisID, StatusSuccess).
		Order("id DESC").
		Take(&run).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "last_run", "analysis_id", analysisID)
	}
	return &run, nil
}

// Runs lists the most recent runs of an analysis, newest first.
func (s *Store) Runs(ctx context.Context, analysisID int64, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []RunLog
	err := s.DB.WithContext(ctx).
		Where("analysis_id = ?", analysisID).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, dbError(err, "list_runs", "analysis_id", analysisID)
	}
	return runs, nil
}
