// Package http serves the helmd operator API.
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

	"github.com/fyrsmithlabs/helmd/internal/control"
	"github.com/fyrsmithlabs/helmd/internal/governance"
	"github.com/fyrsmithlabs/helmd/internal/logging"
)

// Server provides HTTP endpoints for helmd.
type Server struct {
	echo     *echo.Echo
	service  *control.Service
	events   EventSource
	gatherer prometheus.Gatherer
	metrics  *HTTPMetrics
	logger   *zap.Logger
	config   *Config
}

// EventSource is the part of the event bus the SSE endpoint needs.
type EventSource interface {
	Subscribe(governance.Handler) func()
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// AllowOrigins lists the dashboard origins allowed by CORS.
	AllowOrigins []string

	// IntakeRate and IntakeBurst bound proposal submissions per client IP.
	// A zero rate disables the limit.
	IntakeRate  float64
	IntakeBurst int

	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// DefaultConfig returns the stock HTTP settings.
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         9090,
		AllowOrigins: []string{"*"},
		IntakeRate:   10,
		IntakeBurst:  20,
		Heartbeat:    30 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithEvents enables the SSE endpoint over src.
func WithEvents(src EventSource) Option {
	return func(s *Server) {
		s.events = src
	}
}

// WithGatherer sets the Prometheus gatherer served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithHTTPMetrics records OpenTelemetry request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new HTTP server.
func NewServer(service *control.Service, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("control service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		service:  service,
		gatherer: prometheus.DefaultGatherer,
		logger:   logger,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
	}))
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			if err := next(c); err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return nil
		}
	})

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	intake := []echo.MiddlewareFunc{}
	if s.config.IntakeRate > 0 {
		intake = append(intake, newIPRateLimiter(s.config.IntakeRate, s.config.IntakeBurst, s.logger).Middleware())
	}
	v1.POST("/proposals", s.handleSubmitProposal, intake...)
	v1.POST("/intents/:id/decision", s.handleDecision)
	v1.GET("/dashboard", s.handleDashboard)
	v1.GET("/config", s.handleGetConfig)
	v1.PATCH("/config", s.handlePatchConfig)
	v1.GET("/events", s.handleEvents)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSubmitProposal validates and admits a proposal. The source comes
// from the "source" query parameter and defaults to proposer.
func (s *Server) handleSubmitProposal(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	source := governance.Source(c.QueryParam("source"))

	res, err := s.service.SubmitProposalJSON(c.Request().Context(), body, source)
	if err != nil {
		return s.pipelineError(err)
	}
	if !res.Accepted {
		return c.JSON(http.StatusUnprocessableEntity, res)
	}
	return c.JSON(http.StatusAccepted, res)
}

// handleDecision approves or rejects a pending intent.
func (s *Server) handleDecision(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid decision request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id := c.Param("id")
	ctx := logging.WithIntentID(c.Request().Context(), id)

	res, err := s.service.Decide(ctx, id, req.Decision, req.Actor, req.Reason)
	switch {
	case errors.Is(err, control.ErrInvalidDecision):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, governance.ErrNotFound):
		return c.JSON(http.StatusNotFound, res)
	case err != nil:
		return s.pipelineError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// handleDashboard returns the operator dashboard aggregate.
func (s *Server) handleDashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.DashboardSnapshot())
}

func (s *Server) handleGetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Config())
}

// handlePatchConfig applies a partial configuration update.
func (s *Server) handlePatchConfig(c echo.Context) error {
	var patch governance.ConfigPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cfg, err := s.service.UpdateConfig(c.Request().Context(), patch)
	if err != nil {
		if errors.Is(err, governance.ErrInvalidConfig) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return s.pipelineError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) pipelineError(err error) error {
	switch {
	case errors.Is(err, governance.ErrShutdown):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, governance.ErrInvalidSource):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.logger.Error("pipeline request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

// Echo exposes the underlying router for tests and extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
