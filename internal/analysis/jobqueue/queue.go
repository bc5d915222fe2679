package jobqueue

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
)

// JobQueue admits execution requests into per-analysis lanes and runs them
// on a bounded worker pool.
type JobQueue struct {
	mu          sync.Mutex
	lanes       map[int64]*lane // only analyses with queued or running work
	history     *cache.Cache    // laneOutcome of released lanes, by analysis id
	stats       JobStats
	jobCounter  int
	pending     int
	running     int
	runningJobs sync.WaitGroup // lane goroutines, for graceful shutdown
	isRunning   bool
	stopped     bool
	workers     int
	maxPending  int
	sem         *semaphore.Weighted
	run         RunFunc
	ctx         context.Context
	cancel      context.CancelFunc
	log         logger.Logger
}

// lane is the FIFO of one analysis identity. active is true while a lane
// goroutine owns it; at most one exists per lane.
type lane struct {
	pending []*Job
	current *Job
	active  bool
	last    laneOutcome
}

// laneOutcome is the result of the latest finished execution of a lane.
type laneOutcome struct {
	state      State
	err        error
	finishedAt time.Time
}

// outcome is written once before a job's done channel is closed.
type outcome struct {
	state State
	err   error
}

type jobHandle struct {
	done   chan struct{}
	result *outcome
}

// NewJobQueue creates a stopped queue. Call Start before Enqueue.
func NewJobQueue(run RunFunc, opts Options, log logger.Logger) (*JobQueue, error) {
	if run == nil {
		return nil, ErrNilRunner
	}
	workers := max(opts.Workers, 1)
	ttl := opts.HistoryTTL
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &JobQueue{
		lanes:      make(map[int64]*lane),
		history:    cache.New(ttl, 0), // expired entries are purged when a lane is released
		workers:    workers,
		maxPending: max(opts.MaxPending, 0),
		sem:        semaphore.NewWeighted(int64(workers)),
		run:        run,
		log:        log.Module("jobqueue"),
	}, nil
}

// Start starts the job queue processing
func (q *JobQueue) Start() {
	q.StartWithContext(context.Background())
}

// StartWithContext starts the queue. Cancelling ctx has the same effect on
// running jobs as Stop but keeps admitting requests until Stop is called.
func (q *JobQueue) StartWithContext(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning || q.stopped {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.isRunning = true
	q.log.Info("job queue started",
		logger.Int("workers", q.workers),
		logger.Int("max_pending", q.maxPending))
}

// Enqueue admits a request for analysisID. A request identical to one
// already waiting in the lane is coalesced into it and the existing job is
// returned with coalesced set. The lane is dispatched immediately when no
// execution of the analysis is queued or running.
func (q *JobQueue) Enqueue(analysisID int64, reference time.Time) (job Job, coalesced bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.stopped || (q.ctx != nil && q.ctx.Err() != nil):
		return Job{}, false, ErrQueueStopped
	case !q.isRunning:
		return Job{}, false, ErrNotStarted
	}

	l := q.lanes[analysisID]
	if l == nil {
		l = &lane{}
		if prev, ok := q.history.Get(historyKey(analysisID)); ok {
			l.last = prev.(laneOutcome)
			q.history.Delete(historyKey(analysisID))
		}
		q.lanes[analysisID] = l
	}

	waiting := l.pending
	if l.current != nil && l.current.Status == StateQueued {
		waiting = append([]*Job{l.current}, waiting...)
	}
	for _, p := range waiting {
		if p.Reference.Equal(reference) {
			q.stats.CoalescedJobs++
			q.logCoalesced(p)
			return *p, true, nil
		}
	}

	if q.maxPending > 0 && q.pending >= q.maxPending {
		q.stats.DroppedJobs++
		q.log.Warn("job queue is full, rejecting request",
			logger.Int64("analysis_id", analysisID),
			logger.Int("pending", q.pending))
		if !l.active {
			q.releaseLaneLocked(analysisID, l)
		}
		return Job{}, false, ErrQueueFull
	}

	q.jobCounter++
	j := &Job{
		ID:         fmt.Sprintf("job-%d", q.jobCounter),
		AnalysisID: analysisID,
		Reference:  reference,
		CreatedAt:  time.Now(),
		Status:     StateQueued,
		handle:     &jobHandle{done: make(chan struct{}), result: &outcome{}},
	}
	l.pending = append(l.pending, j)
	q.pending++
	q.stats.TotalJobs++
	q.logEnqueued(j, len(l.pending))

	if !l.active {
		l.active = true
		q.runningJobs.Add(1)
		go q.processLane(analysisID, l)
	}
	return *j, false, nil
}

// processLane drains one lane in submission order. It is the only
// goroutine that runs jobs of this analysis.
func (q *JobQueue) processLane(analysisID int64, l *lane) {
	defer q.runningJobs.Done()

	for {
		q.mu.Lock()
		if q.ctx.Err() != nil {
			dropped := l.pending
			l.pending = nil
			l.active = false
			q.pending -= len(dropped)
			q.stats.DroppedJobs += len(dropped)
			q.releaseLaneLocked(analysisID, l)
			q.mu.Unlock()
			for _, j := range dropped {
				q.logDropped(j)
				j.handle.finish(StateIdle, ErrQueueStopped)
			}
			return
		}
		if len(l.pending) == 0 {
			l.active = false
			q.releaseLaneLocked(analysisID, l)
			q.mu.Unlock()
			return
		}
		j := l.pending[0]
		l.pending = l.pending[1:]
		l.current = j
		q.mu.Unlock()

		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			q.finishDropped(l, j)
			continue
		}
		if q.ctx.Err() != nil {
			q.sem.Release(1)
			q.finishDropped(l, j)
			continue
		}

		q.executeJob(l, j)
		q.sem.Release(1)
	}
}

// executeJob runs j and records its outcome. Panics in the runner become
// job failures.
func (q *JobQueue) executeJob(l *lane, j *Job) {
	q.mu.Lock()
	q.pending--
	q.running++
	j.Status = StateRunning
	j.StartedAt = time.Now()
	snapshot := *j
	ctx := q.ctx
	q.mu.Unlock()

	q.logStarted(&snapshot)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("job execution panicked: %v", r).
					Category(errors.CategoryJobQueue).
					Context("analysis_id", j.AnalysisID).
					Build()
			}
		}()
		err = q.run(ctx, snapshot)
	}()

	q.mu.Lock()
	q.running--
	j.FinishedAt = time.Now()
	j.LastError = err
	if err != nil {
		j.Status = StateFailed
		q.stats.FailedJobs++
	} else {
		j.Status = StateCompleted
		q.stats.SuccessfulJobs++
	}
	l.current = nil
	l.last = laneOutcome{state: j.Status, err: err, finishedAt: j.FinishedAt}
	done := *j
	q.mu.Unlock()

	if err != nil {
		q.logFailed(&done, err)
	} else {
		q.logCompleted(&done)
	}
	j.handle.finish(done.Status, err)
}

// releaseLaneLocked forgets an idle lane. Its last outcome, if any, stays
// visible through State and States until the history entry expires.
func (q *JobQueue) releaseLaneLocked(analysisID int64, l *lane) {
	delete(q.lanes, analysisID)
	q.history.DeleteExpired()
	if l.last.finishedAt.IsZero() {
		return
	}
	q.history.SetDefault(historyKey(analysisID), l.last)
}

func historyKey(analysisID int64) string {
	return strconv.FormatInt(analysisID, 10)
}

func (q *JobQueue) finishDropped(l *lane, j *Job) {
	q.mu.Lock()
	q.pending--
	q.stats.DroppedJobs++
	l.current = nil
	q.mu.Unlock()
	q.logDropped(j)
	j.handle.finish(StateIdle, ErrQueueStopped)
}

func (h *jobHandle) finish(state State, err error) {
	h.result.state = state
	h.result.err = err
	close(h.done)
}

// Wait blocks until the job finishes, is dropped or ctx is done. It returns
// the final state and the runner's error. A job dropped by Stop reports
// StateIdle and ErrQueueStopped.
func (j Job) Wait(ctx context.Context) (State, error) {
	if j.handle == nil {
		return StateIdle, ErrNotStarted
	}
	select {
	case <-j.handle.done:
		return j.handle.result.state, j.handle.result.err
	case <-ctx.Done():
		return j.Status, ctx.Err()
	}
}

// Stop stops the job queue processing
func (q *JobQueue) Stop() error {
	return q.StopWithTimeout(10 * time.Second)
}

// StopWithTimeout refuses new requests, drops every request that has not
// started and cancels the context of running ones. It waits up to timeout
// for running executions to reach a cancellation checkpoint.
func (q *JobQueue) StopWithTimeout(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	wasRunning := q.isRunning
	q.isRunning = false

	var dropped []*Job
	for _, l := range q.lanes {
		dropped = append(dropped, l.pending...)
		l.pending = nil
	}
	q.pending -= len(dropped)
	q.stats.DroppedJobs += len(dropped)
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	for _, j := range dropped {
		q.logDropped(j)
		j.handle.finish(StateIdle, ErrQueueStopped)
	}
	if !wasRunning {
		return nil
	}

	c := make(chan struct{})
	go func() {
		q.runningJobs.Wait()
		close(c)
	}()

	select {
	case <-c:
		q.log.Info("job queue stopped", logger.Int("dropped", len(dropped)))
		return nil
	case <-time.After(timeout):
		return errors.Newf("timed out waiting for jobs to complete after %v", timeout).
			Category(errors.CategoryTimeout).
			Build()
	}
}

// State returns the scheduling state of one analysis. Identities that were
// never enqueued are IDLE.
func (q *JobQueue) State(analysisID int64) LaneStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.laneStatusLocked(analysisID, q.laneLocked(analysisID))
}

// laneLocked returns the live lane of analysisID, or a detached idle lane
// carrying its remembered outcome, or nil.
func (q *JobQueue) laneLocked(analysisID int64) *lane {
	if l, ok := q.lanes[analysisID]; ok {
		return l
	}
	if prev, ok := q.history.Get(historyKey(analysisID)); ok {
		return &lane{last: prev.(laneOutcome)}
	}
	return nil
}

// States returns the status of every known analysis ordered by id.
func (q *JobQueue) States() []LaneStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	known := make(map[int64]struct{}, len(q.lanes))
	for id := range q.lanes {
		known[id] = struct{}{}
	}
	for key := range q.history.Items() {
		if id, err := strconv.ParseInt(key, 10, 64); err == nil {
			known[id] = struct{}{}
		}
	}
	ids := slices.Sorted(maps.Keys(known))
	out := make([]LaneStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, q.laneStatusLocked(id, q.laneLocked(id)))
	}
	return out
}

func (q *JobQueue) laneStatusLocked(analysisID int64, l *lane) LaneStatus {
	st := LaneStatus{AnalysisID: analysisID, State: StateIdle, LastOutcome: StateIdle}
	if l == nil {
		return st
	}
	st.Pending = len(l.pending)
	st.LastOutcome = l.last.state
	if l.last.err != nil {
		st.LastError = l.last.err.Error()
	}
	if !l.last.finishedAt.IsZero() {
		t := l.last.finishedAt
		st.LastRun = &t
	}
	switch {
	case l.current != nil && l.current.Status == StateRunning:
		st.State = StateRunning
		t := l.current.StartedAt
		st.Running = &t
	case l.current != nil || len(l.pending) > 0:
		st.State = StateQueued
	}
	return st
}

// GetStats returns a snapshot of the current job statistics
func (q *JobQueue) GetStats() JobStatsSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return JobStatsSnapshot{
		TotalJobs:      q.stats.TotalJobs,
		SuccessfulJobs: q.stats.SuccessfulJobs,
		FailedJobs:     q.stats.FailedJobs,
		CoalescedJobs:  q.stats.CoalescedJobs,
		DroppedJobs:    q.stats.DroppedJobs,
		Pending:        q.pending,
		Running:        q.running,
		Workers:        q.workers,
		MaxPending:     q.maxPending,
	}
}
