package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderCorrelationID carries the request correlation ID. Incoming
// values are honored; absent ones are generated.
const HeaderCorrelationID = "X-Correlation-ID"

const correlationKey = "correlation_id"

func (s *Server) correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(HeaderCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationKey, id)
		c.Response().Header().Set(HeaderCorrelationID, id)
		return next(c)
	}
}

func correlationID(c echo.Context) string {
	if id, ok := c.Get(correlationKey).(string); ok {
		return id
	}
	return ""
}

func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			status = statusForError(err)
		}
		s.metrics.ObserveRequest(c.Path(), strconv.Itoa(status), time.Since(start).Seconds())
		return err
	}
}

// authMiddleware enforces bearer auth on mutating endpoints when a
// token is configured.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := s.cfg.Server.AuthToken
		if token == "" {
			return next(c)
		}

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
		}
		return next(c)
	}
}

// ingestTimeoutMiddleware bounds ingest requests with the configured
// deadline so a stuck backend cannot hold the connection open forever.
func (s *Server) ingestTimeoutMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		timeout := s.cfg.Server.IngestTimeout
		if timeout <= 0 {
			return next(c)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
