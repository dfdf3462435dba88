// Package api exposes the retrieval engine over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/docmeta"
	"github.com/quarry-search/quarry/internal/embed"
	qerr "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/index"
	"github.com/quarry-search/quarry/internal/ingest"
	"github.com/quarry-search/quarry/internal/metrics"
	"github.com/quarry-search/quarry/internal/search"
)

// Server wires the engine components behind an Echo router.
type Server struct {
	cfg         *config.Config
	coordinator *ingest.Coordinator
	engine      *search.Engine
	embedder    embed.Embedder
	index       index.VectorIndex
	docs        *docmeta.Store
	logger      *slog.Logger
	metrics     *metrics.Metrics
	echo        *echo.Echo
}

// NewServer assembles the HTTP server. docs, logger and m may be nil.
func NewServer(cfg *config.Config, coordinator *ingest.Coordinator, engine *search.Engine, embedder embed.Embedder, store index.VectorIndex, docs *docmeta.Store, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:         cfg,
		coordinator: coordinator,
		engine:      engine,
		embedder:    embedder,
		index:       store,
		docs:        docs,
		logger:      logger,
		metrics:     m,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.correlationMiddleware)
	e.Use(s.metricsMiddleware)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.POST("/query", s.handleQuery)
	e.GET("/documents", s.handleListDocuments)

	protected := e.Group("", s.authMiddleware)
	protected.POST("/ingest", s.handleIngest, s.ingestTimeoutMiddleware)
	protected.DELETE("/documents/:id", s.handleDelete)

	s.echo = e
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info("http server listening", slog.String("addr", addr))
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleError maps engine error kinds onto HTTP statuses and renders a
// uniform JSON error body.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusForError(err)
	message := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		message = fmt.Sprint(he.Message)
	}

	s.metrics.ObserveError(c.Path())
	s.logger.Error("request failed",
		slog.String("method", c.Request().Method),
		slog.String("path", c.Path()),
		slog.Int("status", status),
		slog.String("correlation_id", correlationID(c)),
		slog.String("error", message))

	_ = c.JSON(status, errorBody{Error: message, CorrelationID: correlationID(c)})
}

// statusForError maps a failure onto its HTTP status. Both the error
// handler and the request-count metric label use this mapping.
func statusForError(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	switch qerr.GetKind(err) {
	case qerr.KindValidation:
		return http.StatusBadRequest
	case qerr.KindNotFound:
		return http.StatusNotFound
	case qerr.KindTimeout:
		return http.StatusRequestTimeout
	case qerr.KindEmbeddingProvider, qerr.KindTransientBackend,
		qerr.KindStorage, qerr.KindCollectionMissing:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
