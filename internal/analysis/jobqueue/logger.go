package jobqueue

import (
	"github.com/guianderson/terrama2/internal/logger"
)

func jobFields(j *Job) []logger.Field {
	return []logger.Field{
		logger.String("job_id", j.ID),
		logger.Int64("analysis_id", j.AnalysisID),
		logger.Time("reference", j.Reference),
	}
}

func (q *JobQueue) logEnqueued(j *Job, laneDepth int) {
	q.log.Debug("job enqueued", append(jobFields(j), logger.Int("lane_depth", laneDepth))...)
}

func (q *JobQueue) logCoalesced(j *Job) {
	q.log.Debug("duplicate request coalesced into pending job", jobFields(j)...)
}

func (q *JobQueue) logStarted(j *Job) {
	q.log.Debug("job started", append(jobFields(j),
		logger.Duration("queued_for", j.StartedAt.Sub(j.CreatedAt)))...)
}

func (q *JobQueue) logCompleted(j *Job) {
	q.log.Info("job completed", append(jobFields(j),
		logger.Duration("duration", j.FinishedAt.Sub(j.StartedAt)))...)
}

// logFailed uses Warn; the runner has already logged the diagnostic.
func (q *JobQueue) logFailed(j *Job, err error) {
	q.log.Warn("job failed", append(jobFields(j),
		logger.Duration("duration", j.FinishedAt.Sub(j.StartedAt)),
		logger.Error(err))...)
}

func (q *JobQueue) logDropped(j *Job) {
	q.log.Info("pending job dropped on stop", jobFields(j)...)
}
