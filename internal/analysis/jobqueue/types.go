// Package jobqueue schedules analysis executions. Requests are partitioned
// into one FIFO lane per analysis id so an analysis never runs concurrently
// with itself, while distinct analyses share a bounded worker pool.
package jobqueue

import (
	"context"
	"errors"
	"time"
)

// Common errors that can be returned by job queue operations
var (
	ErrNilRunner    = errors.New("cannot create job queue without a runner")
	ErrQueueStopped = errors.New("job queue has been stopped")
	ErrQueueFull    = errors.New("job queue is full")
	ErrNotStarted   = errors.New("job queue has not been started")
)

// RunFunc executes one request. The context is cancelled when the queue
// stops; implementations check it between units of work.
type RunFunc func(ctx context.Context, job Job) error

// State is the scheduling state of one analysis identity.
type State int

const (
	// StateIdle means no request is pending or running
	StateIdle State = iota
	// StateQueued means requests are waiting for a worker
	StateQueued
	// StateRunning means an execution is in progress
	StateRunning
	// StateCompleted is the outcome of a successful execution
	StateCompleted
	// StateFailed is the outcome of a failed execution
	StateFailed
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateQueued:
		return "QUEUED"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets State appear by name in JSON documents.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Job is one admitted execution request.
type Job struct {
	ID         string    // queue-local id, "job-N"
	AnalysisID int64     // lane key
	Reference  time.Time // execution reference timestamp
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Status     State
	LastError  error

	handle *jobHandle
}

// Options configures a JobQueue.
type Options struct {
	// Workers bounds how many analyses run at once. Values below 1 mean 1.
	Workers int
	// MaxPending bounds queued requests across all lanes. 0 means unbounded.
	MaxPending int
	// HistoryTTL is how long the last outcome of an idle analysis is kept.
	// 0 means DefaultHistoryTTL.
	HistoryTTL time.Duration
}

// DefaultHistoryTTL bounds how long outcomes of idle analyses are reported.
const DefaultHistoryTTL = 24 * time.Hour

// LaneStatus describes one analysis identity.
type LaneStatus struct {
	AnalysisID  int64      `json:"analysis_id"`
	State       State      `json:"state"`
	Pending     int        `json:"pending"`
	Running     *time.Time `json:"running_since,omitempty"`
	LastOutcome State      `json:"last_outcome"`
	LastError   string     `json:"last_error,omitempty"`
	LastRun     *time.Time `json:"last_run,omitempty"`
}

// JobStats holds counters maintained under the queue lock
type JobStats struct {
	TotalJobs      int
	SuccessfulJobs int
	FailedJobs     int
	CoalescedJobs  int
	DroppedJobs    int
}

// JobStatsSnapshot is a point-in-time copy of queue statistics
type JobStatsSnapshot struct {
	TotalJobs      int `json:"total_jobs"`
	SuccessfulJobs int `json:"successful_jobs"`
	FailedJobs     int `json:"failed_jobs"`
	CoalescedJobs  int `json:"coalesced_jobs"`
	DroppedJobs    int `json:"dropped_jobs"`
	Pending        int `json:"pending"`
	Running        int `json:"running"`
	Workers        int `json:"workers"`
	MaxPending     int `json:"max_pending"`
}
