// Package http exposes the task queue and supervisor over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentq/internal/logging"
	"github.com/fyrsmithlabs/agentq/internal/orchestrator"
	"github.com/fyrsmithlabs/agentq/internal/queue"
	"github.com/fyrsmithlabs/agentq/internal/secrets"
	"github.com/fyrsmithlabs/agentq/internal/supervisor"
	"github.com/fyrsmithlabs/agentq/internal/tasktype"
	"github.com/fyrsmithlabs/agentq/internal/telemetry"
)

// Server provides the agentq HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	store  queue.Store
	logger *logging.Logger
	config *Config

	dispatcher     *orchestrator.Dispatcher
	supervisors    *supervisor.Registry
	supervisorRoot string
	scrubber       *secrets.Scrubber
	classifier     *tasktype.Classifier
	telemetry      *telemetry.Telemetry
	metrics        *HTTPMetrics
	gatherer       prometheus.Gatherer
	version        string
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithDispatcher submits new tasks through d and resumes tasks that a reply
// moved straight back to RUNNING.
func WithDispatcher(d *orchestrator.Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// WithSupervisors serves the supervisor endpoints from the supervisor
// registered for root.
func WithSupervisors(reg *supervisor.Registry, root string) Option {
	return func(s *Server) {
		s.supervisors = reg
		s.supervisorRoot = root
	}
}

// WithScrubber redacts secrets from output written through the status
// endpoint.
func WithScrubber(sc *secrets.Scrubber) Option {
	return func(s *Server) { s.scrubber = sc }
}

// WithClassifier replaces the default task-type classifier.
func WithClassifier(c *tasktype.Classifier) Option {
	return func(s *Server) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithTelemetry reports telemetry health on /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

// WithHTTPMetrics records request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithVersion sets the version reported on /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new HTTP server.
func NewServer(store queue.Store, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8765,
		}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	s := &Server{
		echo:       e,
		store:      store,
		logger:     logger.Named("http"),
		config:     cfg,
		classifier: tasktype.Default(),
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(s.requestContext)

	s.registerRoutes()
	return s, nil
}

// requestContext carries the request id into the request context and logs
// each request.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleCreateTask)
	v1.GET("/tasks/:id", s.handleGetTask)
	v1.PATCH("/tasks/:id/status", s.handleUpdateStatus)
	v1.POST("/tasks/:id/awaiting", s.handleSetAwaiting)
	v1.POST("/tasks/:id/reply", s.handleReply)
	v1.GET("/task-groups/:id/tasks", s.handleListGroup)
	v1.POST("/classify", s.handleClassify)

	sup := v1.Group("/supervisor")
	sup.POST("/compose", s.handleCompose)
	sup.POST("/format", s.handleFormat)
	sup.POST("/validate", s.handleValidate)
	sup.GET("/config/:project_id", s.handleSupervisorConfig)
	sup.GET("/config", s.handleSupervisorConfig)
}

// handleHealth reports liveness and telemetry degradation.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Namespace: s.store.Namespace(),
	}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Start serves until ctx is cancelled, then shuts down gracefully. It
// returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return <-errCh
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance for registering additional routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
