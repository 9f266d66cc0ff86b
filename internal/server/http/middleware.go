package http

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

func securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		return next(c)
	}
}

// requestLogger writes one line per request. The error, if any, is handed
// to the echo error handler here so that the logged status is final.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		s.logger.Info(req.Context(), "http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Response().Status,
			"latency", time.Since(start).Round(time.Millisecond).String(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		return nil
	}
}

func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := s.opts.Metrics
		if m == nil {
			return next(c)
		}

		m.HTTPStarted()
		defer m.HTTPFinished()

		start := time.Now()
		err := next(c)
		m.ObserveHTTP(c.Request().Method, c.Request().URL.Path, statusOf(c, err), time.Since(start))
		return err
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ok, err := s.opts.Limiter.Allow(req.Context(), clientIP(req))
		if err != nil {
			// fail open: a limiter outage must not take authentication down
			s.logger.Warn(req.Context(), "rate limiter unavailable", "error", err)
			return next(c)
		}
		if !ok {
			if s.opts.Metrics != nil {
				s.opts.Metrics.RateLimited(req.URL.Path)
			}
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", Code: codeRateLimited})
		}
		return next(c)
	}
}

// statusOf is the status the client will see once err, if any, has been
// rendered by the error handler.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// clientIP prefers X-Real-IP, then the first X-Forwarded-For entry, then the
// peer address.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
