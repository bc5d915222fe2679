// test_helpers_test.go - Shared test helpers for jobqueue package
// These helpers reduce duplication across test files and ensure consistent test setup.
package jobqueue

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/logger"
)

// --- Channel Wait Helpers ---

// waitForChannel waits for a signal on the channel or fails after timeout.
// Use this for waiting on done channels, job completion signals, etc.
func waitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
		// Success
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// --- Common Test Constants ---

const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// --- Queue Helpers ---

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

// newStartedQueue creates and starts a queue that is stopped on cleanup.
func newStartedQueue(t *testing.T, run RunFunc, opts Options) *JobQueue {
	t.Helper()
	q, err := NewJobQueue(run, opts, testLogger())
	require.NoError(t, err)
	q.Start()
	t.Cleanup(func() {
		assert.NoError(t, q.StopWithTimeout(DefaultTestTimeout))
	})
	return q
}

// gate blocks runners until released.
type gate struct {
	started chan int64
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan int64, 64), release: make(chan struct{})}
}

func (g *gate) run(ctx context.Context, job Job) error {
	g.started <- job.AnalysisID
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) waitStarted(t *testing.T) int64 {
	t.Helper()
	select {
	case id := <-g.started:
		return id
	case <-time.After(DefaultTestTimeout):
		require.Fail(t, "runner did not start")
		return 0
	}
}

func (g *gate) open() { close(g.release) }
