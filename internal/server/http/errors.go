package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/dmitrijs2005/identity/internal/server/services"
)

const (
	codeInvalidArgument    = "invalid_argument"
	codeAlreadyExists      = "already_exists"
	codeInvalidCredentials = "invalid_credentials"
	codeAccountDisabled    = "account_disabled"
	codeInvalidToken       = "invalid_token"
	codeUnavailable        = "unavailable"
	codeInternal           = "internal"
	codeRateLimited        = "rate_limited"
	codeNotFound           = "not_found"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Code: codeInvalidArgument})
}

// writeError maps a service error onto a status and a client-safe body. The
// wrapped cause is logged, never returned. tokenMsg overrides the message
// for invalid tokens.
func (s *Server) writeError(c echo.Context, err error, tokenMsg ...string) error {
	status, body := mapError(err)
	if body.Code == codeInvalidToken && len(tokenMsg) > 0 {
		body.Error = tokenMsg[0]
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed",
			"path", c.Path(), "status", status, "error", err)
	}
	return c.JSON(status, body)
}

func mapError(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, common.ErrInvalidArgument):
		return http.StatusBadRequest, errorResponse{Error: services.ClientMessage(err), Code: codeInvalidArgument}
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, errorResponse{Error: common.ErrAlreadyExists.Error(), Code: codeAlreadyExists}
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: common.ErrInvalidCredentials.Error(), Code: codeInvalidCredentials}
	case errors.Is(err, common.ErrAccountDisabled):
		return http.StatusUnauthorized, errorResponse{Error: common.ErrAccountDisabled.Error(), Code: codeAccountDisabled}
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, errorResponse{Error: common.ErrInvalidToken.Error(), Code: codeInvalidToken}
	case errors.Is(err, common.ErrUnavailable):
		return http.StatusInternalServerError, errorResponse{Error: "service temporarily unavailable", Code: codeUnavailable}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: codeInternal}
	}
}

// handleEchoError renders router and middleware errors (404, 405, body
// limit, recovered panics) in the same shape as handler errors.
func (s *Server) handleEchoError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := errorResponse{Error: "internal error", Code: codeInternal}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch status {
		case http.StatusNotFound:
			body = errorResponse{Error: "not found", Code: codeNotFound}
		case http.StatusInternalServerError:
		default:
			body = errorResponse{Error: http.StatusText(status), Code: codeInvalidArgument}
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "unhandled error", "path", c.Request().URL.Path, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}
