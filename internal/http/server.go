// Package http provides the HTTP API for ledgerd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
	"github.com/fyrsmithlabs/ledgerd/internal/service"
)

const maxDocumentSize = "1M"

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for ledgerd.
type Server struct {
	echo    *echo.Echo
	service *service.Service
	logger  *zap.Logger
	config  *Config
}

// NewServer creates a new HTTP server.
func NewServer(svc *service.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
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

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxDocumentSize))
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
		echo:    e,
		service: svc,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/invoices", s.handleSubmit)
	v1.GET("/invoices", s.handleListInvoices)
	v1.GET("/invoices/:id", s.handleGetInvoice)
	v1.PATCH("/invoices/:id", s.handleCorrectInvoice)
	v1.GET("/invoices/:id/similar", s.handleFindSimilar)
	v1.GET("/search", s.handleSearch)
	v1.GET("/vendors", s.handleListVendors)
	v1.GET("/jobs/:id", s.handleJobStatus)
}

// SubmitRequest is the request body for POST /api/v1/invoices.
type SubmitRequest struct {
	// Document is the raw invoice text.
	Document string `json:"document"`
	// Async, when true, queues the document and returns a job id instead
	// of blocking until extraction completes.
	Async bool `json:"async,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid submit request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Document == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document field is required")
	}

	ctx := c.Request().Context()
	raw := []byte(req.Document)

	if req.Async {
		job, err := s.service.SubmitAsync(ctx, raw)
		if err != nil {
			return s.mapError(err)
		}
		return c.JSON(http.StatusAccepted, job)
	}

	inv, err := s.service.Submit(ctx, raw)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (s *Server) handleGetInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invoice id")
	}

	inv, err := s.service.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (s *Server) handleCorrectInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invoice id")
	}

	var cor service.Correction
	if err := c.Bind(&cor); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	inv, err := s.service.CorrectInvoice(c.Request().Context(), id, cor)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (s *Server) handleListInvoices(c echo.Context) error {
	filter := service.ListFilter{
		Vendor:      c.QueryParam("vendor"),
		Category:    c.QueryParam("category"),
		NeedsReview: c.QueryParam("needs_review") == "true",
		Limit:       queryInt(c, "limit"),
		Offset:      queryInt(c, "offset"),
	}

	invoices, err := s.service.ListInvoices(c.Request().Context(), filter)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, invoices)
}

func (s *Server) handleFindSimilar(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invoice id")
	}

	hits, err := s.service.FindSimilar(c.Request().Context(), id, queryInt(c, "limit"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, hits)
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")

	hits, err := s.service.SemanticSearch(c.Request().Context(), query, queryInt(c, "limit"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, hits)
}

func (s *Server) handleListVendors(c echo.Context) error {
	vendors, err := s.service.ListVendors(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, vendors)
}

func (s *Server) handleJobStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job id")
	}

	job, err := s.service.JobStatus(c.Request().Context(), id)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, job)
}

// mapError translates service errors into HTTP status codes.
func (s *Server) mapError(err error) error {
	var rejected *service.RejectedError
	switch {
	case errors.As(err, &rejected):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, rejected.Reason)
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrNotEmbedded):
		return echo.NewHTTPError(http.StatusConflict, "invoice has no embedding yet")
	case errors.Is(err, service.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	case errors.Is(err, invoice.ErrMissingFields):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func queryInt(c echo.Context, name string) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return v
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
