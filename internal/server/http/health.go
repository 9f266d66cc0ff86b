package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GET /health/live answers as long as the process runs.
func (s *Server) live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// GET /health/ready answers 200 only while the store is reachable.
func (s *Server) ready(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.svc.Ready(ctx); err != nil {
		s.logger.Warn(ctx, "readiness check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
