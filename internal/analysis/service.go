// Package analysis runs analysis executions: requests are admitted to the
// per-analysis job queue and each execution validates, binds, evaluates the
// script row by row and writes one result record per row.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guianderson/terrama2/internal/analysis/binder"
	"github.com/guianderson/terrama2/internal/analysis/jobqueue"
	"github.com/guianderson/terrama2/internal/analysis/operators"
	"github.com/guianderson/terrama2/internal/analysis/result"
	"github.com/guianderson/terrama2/internal/analysis/script"
	"github.com/guianderson/terrama2/internal/analysis/validator"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/geometry"
	"github.com/guianderson/terrama2/internal/logger"
)

// Run statuses reported in RunRecord.Status.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Default settings used when Config leaves them zero.
const (
	DefaultWorkers     = 4
	DefaultStopTimeout = 30 * time.Second
)

// Catalog is the part of the catalog an execution reads.
type Catalog interface {
	Analysis(id int64) (*catalog.Analysis, error)
	DataSeries(id int64) (*catalog.DataSeries, error)
	DataSet(id int64) (*catalog.DataSet, error)
}

// RunLogger records the start and completion of every execution. Start
// returns a token that identifies the run in the matching Done call.
type RunLogger interface {
	Start(ctx context.Context, analysisID int64, executionID string, reference time.Time) (int64, error)
	Done(ctx context.Context, token int64, success bool, dataTimestamp time.Time, previousRun *time.Time, message string) error
	LastProcessTimestamp(ctx context.Context, analysisID int64) (*time.Time, error)
}

// RunRecord summarizes one finished execution.
type RunRecord struct {
	Token         int64                `json:"token"`
	AnalysisID    int64                `json:"analysis_id"`
	AnalysisName  string               `json:"analysis_name,omitempty"`
	ExecutionID   string               `json:"execution_id"`
	InstanceID    string               `json:"instance_id,omitempty"`
	Reference     time.Time            `json:"reference"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    time.Time            `json:"finished_at"`
	Status        string               `json:"status"`
	Rows          int                  `json:"rows"`
	Written       int                  `json:"written"`
	DataTimestamp time.Time            `json:"data_timestamp,omitzero"`
	PreviousRun   *time.Time           `json:"previous_run,omitempty"` // reference time of the last successful run
	Category      errors.ErrorCategory `json:"category,omitempty"`
	Message       string               `json:"message,omitempty"`
}

// Duration is the wall time the execution took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Observer is told about every finished execution, after its completion
// record has been written. Implementations must not block for long.
type Observer interface {
	RunFinished(ctx context.Context, rec RunRecord)
}

// Config holds the collaborators and limits of a Service.
type Config struct {
	Catalog  Catalog
	Accessor binder.Accessor
	Engine   *geometry.Engine
	RunLog   RunLogger
	Writer   result.Writer

	Workers     int
	QueueSize   int
	RowTimeout  time.Duration
	StopTimeout time.Duration
	InstanceID  string

	Observers []Observer
	Logger    logger.Logger
}

// Service is the analysis execution engine of one instance. Several
// services can live in one process; they share nothing.
type Service struct {
	catalog     Catalog
	binder      *binder.Binder
	engine      *geometry.Engine
	runLog      RunLogger
	writer      result.Writer
	queue       *jobqueue.JobQueue
	rowTimeout  time.Duration
	stopTimeout time.Duration
	instanceID  string
	observers   []Observer
	log         logger.Logger
}

// NewService validates cfg and builds a stopped Service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Logger == nil:
		return nil, errors.Newf("analysis service requires a logger").Category(errors.CategoryValidation).Build()
	case cfg.Catalog == nil:
		return nil, errors.Newf("analysis service requires a catalog").Category(errors.CategoryValidation).Build()
	case cfg.Accessor == nil:
		return nil, errors.Newf("analysis service requires a data accessor").Category(errors.CategoryValidation).Build()
	case cfg.RunLog == nil:
		return nil, errors.Newf("analysis service requires a run logger").Category(errors.CategoryValidation).Build()
	case cfg.Writer == nil:
		return nil, errors.Newf("analysis service requires a result writer").Category(errors.CategoryValidation).Build()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	engine := cfg.Engine
	if engine == nil {
		engine = geometry.NewEngine()
	}

	log := cfg.Logger.Module("analysis")
	s := &Service{
		catalog:     cfg.Catalog,
		binder:      binder.New(cfg.Catalog, cfg.Accessor, log),
		engine:      engine,
		runLog:      cfg.RunLog,
		writer:      cfg.Writer,
		rowTimeout:  cfg.RowTimeout,
		stopTimeout: stopTimeout,
		instanceID:  cfg.InstanceID,
		observers:   cfg.Observers,
		log:         log,
	}

	q, err := jobqueue.NewJobQueue(s.execute, jobqueue.Options{Workers: workers, MaxPending: cfg.QueueSize}, log)
	if err != nil {
		return nil, err
	}
	s.queue = q
	return s, nil
}

// Start begins accepting requests.
func (s *Service) Start(ctx context.Context) {
	s.queue.StartWithContext(ctx)
}

// Stop refuses new requests, drops the pending ones and waits for running
// executions to abort at their next row boundary.
func (s *Service) Stop() error {
	return s.queue.StopWithTimeout(s.stopTimeout)
}

// Enqueue admits an execution of analysisID at the reference timestamp.
// Existence and validity are checked when the execution starts, so an
// invalid analysis is admitted and then fails with a configuration error.
func (s *Service) Enqueue(analysisID int64, reference time.Time) (jobqueue.Job, bool, error) {
	job, coalesced, err := s.queue.Enqueue(analysisID, reference.UTC())
	if err != nil {
		return jobqueue.Job{}, false, errors.New(err).
			Category(errors.CategoryJobQueue).
			Context("analysis_id", analysisID).
			Build()
	}
	return job, coalesced, nil
}

// ValidateAnalysis runs the pre-flight checks of analysisID without
// touching any data.
func (s *Service) ValidateAnalysis(analysisID int64) (validator.Result, error) {
	a, err := s.catalog.Analysis(analysisID)
	if err != nil {
		return validator.Result{}, err
	}
	return validator.Validate(s.catalog, a), nil
}

// State returns the scheduling state of analysisID.
func (s *Service) State(analysisID int64) jobqueue.LaneStatus {
	return s.queue.State(analysisID)
}

// States returns the scheduling state of every analysis seen so far.
func (s *Service) States() []jobqueue.LaneStatus {
	return s.queue.States()
}

// Stats returns queue statistics.
func (s *Service) Stats() jobqueue.JobStatsSnapshot {
	return s.queue.GetStats()
}

// execute is the job queue runner: one call is one execution.
func (s *Service) execute(ctx context.Context, job jobqueue.Job) error {
	executionID := uuid.NewString()
	ctx = logger.WithTraceID(ctx, executionID)
	log := s.log.WithContext(ctx).With(
		logger.Int64("analysis_id", job.AnalysisID),
		logger.Time("reference", job.Reference))

	rec := RunRecord{
		AnalysisID:  job.AnalysisID,
		ExecutionID: executionID,
		InstanceID:  s.instanceID,
		Reference:   job.Reference,
		StartedAt:   time.Now(),
	}

	token, err := s.runLog.Start(ctx, job.AnalysisID, executionID, job.Reference)
	if err != nil {
		log.Error("failed to record execution start", logger.Error(err))
		return err
	}
	rec.Token = token

	runErr := s.run(ctx, job, &rec, log)

	rec.FinishedAt = time.Now()
	rec.Status = StatusSuccess
	if runErr != nil {
		rec.Status = StatusFailed
		rec.Category = errors.CategoryOf(runErr)
		rec.Message = runErr.Error()
		log.Error("analysis execution failed",
			logger.String("execution_id", executionID),
			logger.String("category", string(rec.Category)),
			logger.Int("written", rec.Written),
			logger.Error(runErr))
	} else {
		log.Info("analysis execution completed",
			logger.String("execution_id", executionID),
			logger.Int("rows", rec.Rows),
			logger.Duration("elapsed", rec.Duration()))
	}

	// The completion record is written even when the execution was cancelled.
	doneCtx := context.WithoutCancel(ctx)
	if err := s.runLog.Done(doneCtx, token, runErr == nil, rec.DataTimestamp, rec.PreviousRun, rec.Message); err != nil {
		log.Error("failed to record execution completion", logger.Int64("token", token), logger.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	for _, o := range s.observers {
		o.RunFinished(doneCtx, rec)
	}
	return runErr
}

// run executes the pipeline stages in order and fills rec as it goes.
func (s *Service) run(ctx context.Context, job jobqueue.Job, rec *RunRecord, log logger.Logger) error {
	a, err := s.catalog.Analysis(job.AnalysisID)
	if err != nil {
		return errors.ConfigurationError(err).
			Context("analysis_id", job.AnalysisID).
			Build()
	}
	rec.AnalysisName = a.Name

	if !a.Active {
		return errors.ConfigurationError(fmt.Errorf("analysis %d is not active", a.ID)).
			Context("analysis_id", a.ID).
			Build()
	}
	if res := validator.Validate(s.catalog, a); !res.Valid {
		return res.Err()
	}

	lastRun, err := s.runLog.LastProcessTimestamp(ctx, a.ID)
	if err != nil {
		return err
	}
	rec.PreviousRun = lastRun

	bound, err := s.binder.Bind(ctx, a, job.Reference, lastRun)
	if err != nil {
		return err
	}
	rec.Rows = len(bound.Rows)
	rec.DataTimestamp = bound.DataTimestamp()

	prog, err := script.Compile(fmt.Sprintf("analysis_%d.star", a.ID), a.Script)
	if err != nil {
		return err
	}
	opts, err := operators.OptionsFromAnalysis(a)
	if err != nil {
		return errors.ConfigurationError(err).Context("analysis_id", a.ID).Build()
	}
	runner := script.NewRunner(prog, operators.NewLibrary(bound, s.engine, opts), s.rowTimeout, log)
	asm := result.NewAssembler(s.writer, a.ID, a.OutputDataSetID, job.Reference)

	for _, row := range bound.Rows {
		if err := ctx.Err(); err != nil {
			rec.Written = asm.Written()
			return errors.New(err).
				Category(errors.CategoryCancellation).
				Context("analysis_id", a.ID).
				Context("rows_written", asm.Written()).
				Build()
		}

		// a started row is evaluated and written even if Stop arrives meanwhile
		rowCtx := context.WithoutCancel(ctx)
		emitted, err := runner.Run(rowCtx, row)
		if err != nil {
			rec.Written = asm.Written()
			return err
		}
		if err := asm.Add(rowCtx, row.ID, row.Geometry, emitted); err != nil {
			rec.Written = asm.Written()
			return err
		}
		log.Debug("row assembled", logger.String("row", row.ID), logger.Int("attributes", len(emitted)))
	}
	rec.Written = asm.Written()
	return nil
}
