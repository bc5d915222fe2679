package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/guianderson/terrama2/internal/analysis/jobqueue"
	"github.com/guianderson/terrama2/internal/analysis/validator"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
)

// Engine is the part of the analysis service the API drives.
type Engine interface {
	Enqueue(analysisID int64, reference time.Time) (jobqueue.Job, bool, error)
	ValidateAnalysis(analysisID int64) (validator.Result, error)
	State(analysisID int64) jobqueue.LaneStatus
	States() []jobqueue.LaneStatus
	Stats() jobqueue.JobStatsSnapshot
}

// Controller holds the /api/v1 handlers.
type Controller struct {
	engine Engine
	log    logger.Logger
	now    func() time.Time
}

// RegisterRoutes mounts the handlers on g.
func (c *Controller) RegisterRoutes(g *echo.Group) {
	g.POST("/analyses/:id/executions", c.Enqueue)
	g.GET("/analyses/:id/validation", c.Validate)
	g.GET("/analyses/:id/state", c.State)
	g.GET("/queue", c.Queue)
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// ExecutionRequest is the optional body of POST .../executions.
type ExecutionRequest struct {
	// Reference is the execution reference timestamp; now when empty.
	Reference string `json:"reference"`
}

// ExecutionResponse acknowledges an admitted request.
type ExecutionResponse struct {
	JobID      string    `json:"job_id"`
	AnalysisID int64     `json:"analysis_id"`
	Reference  time.Time `json:"reference"`
	Coalesced  bool      `json:"coalesced"`
}

// QueueResponse is the body of GET /queue.
type QueueResponse struct {
	Stats    jobqueue.JobStatsSnapshot `json:"stats"`
	Analyses []jobqueue.LaneStatus     `json:"analyses"`
}

// HandleError logs err under a fresh correlation id and writes an
// ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Error = message
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", ctx.Path()),
		logger.Int("code", code),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error(message, fields...)
	} else {
		c.log.Debug(message, fields...)
	}
	return ctx.JSON(code, resp)
}

func (c *Controller) analysisID(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf("invalid analysis id %q", ctx.Param("id")).Category(errors.CategoryValidation).Build()
	}
	return id, nil
}

// Enqueue handles POST /analyses/:id/executions.
func (c *Controller) Enqueue(ctx echo.Context) error {
	id, err := c.analysisID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid analysis id", http.StatusBadRequest)
	}

	var req ExecutionRequest
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(&req); err != nil {
			return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
		}
	}

	reference := c.now().UTC().Truncate(time.Second)
	if raw := strings.TrimSpace(req.Reference); raw != "" {
		reference, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.HandleError(ctx, err, "Reference must be an RFC 3339 timestamp", http.StatusBadRequest)
		}
	}

	job, coalesced, err := c.engine.Enqueue(id, reference)
	switch {
	case errors.Is(err, jobqueue.ErrQueueFull):
		return c.HandleError(ctx, err, "Execution queue is full", http.StatusServiceUnavailable)
	case errors.Is(err, jobqueue.ErrQueueStopped), errors.Is(err, jobqueue.ErrNotStarted):
		return c.HandleError(ctx, err, "Execution queue is not accepting requests", http.StatusServiceUnavailable)
	case err != nil:
		return c.HandleError(ctx, err, "Failed to enqueue execution", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusAccepted, ExecutionResponse{
		JobID:      job.ID,
		AnalysisID: job.AnalysisID,
		Reference:  job.Reference,
		Coalesced:  coalesced,
	})
}

// Validate handles GET /analyses/:id/validation.
func (c *Controller) Validate(ctx echo.Context) error {
	id, err := c.analysisID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid analysis id", http.StatusBadRequest)
	}
	res, err := c.engine.ValidateAnalysis(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Analysis not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to validate analysis", http.StatusInternalServerError)
	}
	if res.Messages == nil {
		res.Messages = []string{}
	}
	return ctx.JSON(http.StatusOK, res)
}

// State handles GET /analyses/:id/state.
func (c *Controller) State(ctx echo.Context) error {
	id, err := c.analysisID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid analysis id", http.StatusBadRequest)
	}
	return ctx.JSON(http.StatusOK, c.engine.State(id))
}

// Queue handles GET /queue.
func (c *Controller) Queue(ctx echo.Context) error {
	states := c.engine.States()
	if states == nil {
		states = []jobqueue.LaneStatus{}
	}
	return ctx.JSON(http.StatusOK, QueueResponse{
		Stats:    c.engine.Stats(),
		Analyses: states,
	})
}
