package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/guianderson/terrama2/internal/api/middleware"
	"github.com/guianderson/terrama2/internal/logger"
)

// Server is the HTTP server of the engine.
type Server struct {
	echo    *echo.Echo
	config  *Config
	engine  Engine
	metrics http.Handler
	log     logger.Logger

	wg       sync.WaitGroup
	listener net.Listener
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetricsHandler serves h at /metrics when metrics are enabled.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a new HTTP server for engine.
func New(config *Config, engine Engine, log logger.Logger, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("api server requires an analysis engine")
	}

	s := &Server{
		config: config,
		engine: engine,
		log:    log.Module("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(s.log))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	c := &Controller{engine: s.engine, log: s.log, now: time.Now}
	c.RegisterRoutes(s.echo.Group("/api/v1"))

	if s.config.Metrics && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = ln
	s.echo.Listener = ln

	s.wg.Go(func() {
		s.log.Info("HTTP API listening", logger.String("address", ln.Addr().String()))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", logger.Error(err))
		}
	})
	return nil
}

// Addr returns the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	err := s.echo.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) healthCheck(c echo.Context) error {
	stats := s.engine.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"workers": stats.Workers,
		"pending": stats.Pending,
		"running": stats.Running,
	})
}
