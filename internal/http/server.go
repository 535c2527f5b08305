// Package http provides the HTTP API for prefd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prefd/internal/extraction"
	"github.com/fyrsmithlabs/prefd/internal/pipeline"
	"github.com/fyrsmithlabs/prefd/internal/preference"
	"github.com/fyrsmithlabs/prefd/internal/store"
)

// Server provides HTTP endpoints for prefd.
type Server struct {
	echo     *echo.Echo
	pipeline *pipeline.Pipeline
	store    store.Store
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxWindowTurns bounds how many turns a turn request may carry. Zero
	// or less means extraction.DefaultMaxWindowTurns.
	MaxWindowTurns int
}

// NewServer creates a new HTTP server.
func NewServer(p *pipeline.Pipeline, st store.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8420,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: p,
		store:    st,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/turns", s.handleTurn)
	v1.GET("/profiles/:user_id", s.handleGetProfile)
	v1.DELETE("/profiles/:user_id", s.handleDeleteProfile)
}

// TurnRequest is the request body for POST /api/v1/turns.
type TurnRequest struct {
	UserID     string            `json:"user_id"`
	LocaleHint string            `json:"locale_hint,omitempty"`
	Turns      []extraction.Turn `json:"turns"`
}

// TurnResponse is the response body for POST /api/v1/turns.
type TurnResponse struct {
	TurnID   string               `json:"turn_id"`
	Profile  *preference.Profile  `json:"profile"`
	Applied  []preference.Applied `json:"applied,omitempty"`
	Dropped  []string             `json:"dropped,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
	Usage    extraction.Usage     `json:"usage"`
}

// ProfileResponse is the response body for GET /api/v1/profiles/:user_id.
type ProfileResponse struct {
	Profile  *preference.Profile `json:"profile"`
	Revision uint64              `json:"revision"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleTurn runs one conversation window through the pipeline.
func (s *Server) handleTurn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid turn request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	window := extraction.Window{
		UserID:     req.UserID,
		LocaleHint: req.LocaleHint,
		Turns:      req.Turns,
	}
	if err := window.ValidateMax(s.config.MaxWindowTurns); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	turnID := uuid.NewString()

	result, err := s.pipeline.ProcessTurn(c.Request().Context(), window)
	switch {
	case errors.Is(err, pipeline.ErrExtractionUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "extraction provider unavailable, retry later")
	case errors.Is(err, pipeline.ErrReconciliationConflict):
		return echo.NewHTTPError(http.StatusConflict, "profile contention, retry later")
	case err != nil:
		s.logger.Error("turn processing failed",
			zap.String("turn_id", turnID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "turn processing failed")
	}

	return c.JSON(http.StatusOK, TurnResponse{
		TurnID:   turnID,
		Profile:  result.Profile,
		Applied:  result.Applied,
		Dropped:  result.Dropped,
		Warnings: result.Warnings,
		Usage:    result.Usage,
	})
}

// handleGetProfile returns the stored profile for a user.
func (s *Server) handleGetProfile(c echo.Context) error {
	userID := c.Param("user_id")

	profile, revision, err := s.store.Load(c.Request().Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no profile for user")
	}
	if err != nil {
		s.logger.Error("profile load failed", zap.String("user_id", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "profile load failed")
	}

	return c.JSON(http.StatusOK, ProfileResponse{
		Profile:  profile,
		Revision: revision,
	})
}

// handleDeleteProfile removes a user's profile. Administrative surface;
// reconciliation itself never deletes anything.
func (s *Server) handleDeleteProfile(c echo.Context) error {
	userID := c.Param("user_id")

	err := s.store.Delete(c.Request().Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no profile for user")
	}
	if err != nil {
		s.logger.Error("profile delete failed", zap.String("user_id", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "profile delete failed")
	}

	return c.NoContent(http.StatusNoContent)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
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
