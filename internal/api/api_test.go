package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/analysis/jobqueue"
	"github.com/guianderson/terrama2/internal/analysis/validator"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
)

type enqueueCall struct {
	id  int64
	ref time.Time
}

type fakeEngine struct {
	mu         sync.Mutex
	calls      []enqueueCall
	enqueueErr error
	coalesced  bool
}

func (f *fakeEngine) Enqueue(id int64, ref time.Time) (jobqueue.Job, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return jobqueue.Job{}, false, f.enqueueErr
	}
	f.calls = append(f.calls, enqueueCall{id, ref})
	return jobqueue.Job{ID: "job-1", AnalysisID: id, Reference: ref, Status: jobqueue.StateQueued}, f.coalesced, nil
}

func (f *fakeEngine) ValidateAnalysis(id int64) (validator.Result, error) {
	switch id {
	case 1:
		return validator.Result{Valid: true}, nil
	case 2:
		return validator.Result{Valid: false, Messages: []string{"data series 404 not found"}}, nil
	default:
		return validator.Result{}, errors.Newf("analysis %d not found", id).Category(errors.CategoryNotFound).Build()
	}
}

func (f *fakeEngine) State(id int64) jobqueue.LaneStatus {
	return jobqueue.LaneStatus{AnalysisID: id, State: jobqueue.StateRunning, Pending: 1, LastOutcome: jobqueue.StateFailed}
}

func (f *fakeEngine) States() []jobqueue.LaneStatus { return nil }

func (f *fakeEngine) Stats() jobqueue.JobStatsSnapshot {
	return jobqueue.JobStatsSnapshot{TotalJobs: 3, Pending: 1, Running: 1, Workers: 4}
}

func newTestServer(t *testing.T, engine Engine, opts ...ServerOption) http.Handler {
	t.Helper()
	s, err := New(DefaultConfig(), engine, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC), opts...)
	require.NoError(t, err)
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueExecution(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	h := newTestServer(t, engine)

	rec := do(t, h, http.MethodPost, "/api/v1/analyses/7/executions", `{"reference":"2024-03-10T12:00:00Z"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp ExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, int64(7), resp.AnalysisID)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), resp.Reference.UTC())

	require.Len(t, engine.calls, 1)
	assert.Equal(t, int64(7), engine.calls[0].id)
}

func TestEnqueueExecution_DefaultsToNow(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{coalesced: true}
	h := newTestServer(t, engine)

	before := time.Now().UTC().Add(-time.Second)
	rec := do(t, h, http.MethodPost, "/api/v1/analyses/1/executions", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Coalesced)
	assert.False(t, resp.Reference.Before(before))
	assert.Zero(t, resp.Reference.Nanosecond())
}

func TestEnqueueExecution_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		body string
		err  error
		code int
	}{
		{"non numeric id", "/api/v1/analyses/abc/executions", "", nil, http.StatusBadRequest},
		{"negative id", "/api/v1/analyses/-1/executions", "", nil, http.StatusBadRequest},
		{"bad reference", "/api/v1/analyses/1/executions", `{"reference":"yesterday"}`, nil, http.StatusBadRequest},
		{"queue full", "/api/v1/analyses/1/executions", "", jobqueue.ErrQueueFull, http.StatusServiceUnavailable},
		{"stopped", "/api/v1/analyses/1/executions", "", errors.New(jobqueue.ErrQueueStopped).Category(errors.CategoryJobQueue).Build(), http.StatusServiceUnavailable},
		{"other", "/api/v1/analyses/1/executions", "", errors.NewStd("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestServer(t, &fakeEngine{enqueueErr: tt.err})
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.Len(t, resp.CorrelationID, 8)
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeEngine{})

	rec := do(t, h, http.MethodGet, "/api/v1/analyses/1/validation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true,"messages":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/analyses/2/validation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false,"messages":["data series 404 not found"]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/analyses/3/validation", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStateAndQueueEndpoints(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeEngine{})

	rec := do(t, h, http.MethodGet, "/api/v1/analyses/5/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "RUNNING", st["state"])
	assert.Equal(t, "FAILED", st["last_outcome"])
	assert.InDelta(t, 5.0, st["analysis_id"], 0)

	rec = do(t, h, http.MethodGet, "/api/v1/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var q QueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, 3, q.Stats.TotalJobs)
	assert.NotNil(t, q.Analyses)

	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "analysis_runs_total 0\n")
	})

	h := newTestServer(t, &fakeEngine{}, WithMetricsHandler(metrics))
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "analysis_runs_total")

	h = newTestServer(t, &fakeEngine{})
	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerStartShutdown(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s, err := New(cfg, &fakeEngine{}, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Listen = "nonsense"
	require.Error(t, cfg.Validate())

	_, err := New(DefaultConfig(), nil, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	require.Error(t, err)
}
