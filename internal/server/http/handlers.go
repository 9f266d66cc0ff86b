package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/identity/internal/server/auth"
	"github.com/dmitrijs2005/identity/internal/server/services"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type signupResponse struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

type validateResponse struct {
	UserID string `json:"user_id"`
}

func (s *Server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), s.opts.RequestTimeout)
}

func newTokenResponse(p *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// POST /auth/signup
func (s *Server) signup(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := services.ValidateEmail(req.Email); err != nil {
		return badRequest(c, services.ClientMessage(err))
	}
	if err := services.ValidatePassword(req.Password); err != nil {
		return badRequest(c, services.ClientMessage(err))
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	userID, err := s.svc.Signup(ctx, req.Email, req.Password, clientIP(c.Request()))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, signupResponse{UserID: userID})
}

// POST /auth/login
func (s *Server) login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	pair, err := s.svc.Login(ctx, req.Email, req.Password, clientIP(c.Request()))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

// POST /auth/refresh
func (s *Server) refresh(c echo.Context) error {
	var req refreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.RefreshToken == "" {
		return badRequest(c, "refresh_token is required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	pair, err := s.svc.Refresh(ctx, req.RefreshToken, clientIP(c.Request()))
	if err != nil {
		return s.writeError(c, err, "invalid or expired refresh token")
	}
	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

// POST /auth/logout
func (s *Server) logout(c echo.Context) error {
	var req refreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.RefreshToken == "" {
		return badRequest(c, "refresh_token is required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.svc.Logout(ctx, req.RefreshToken, clientIP(c.Request())); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GET /auth/validate
func (s *Server) validate(c echo.Context) error {
	token, ok := bearerToken(c.Request())
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorResponse{
			Error: "missing or malformed Authorization header",
			Code:  codeInvalidToken,
		})
	}

	userID, err := s.svc.ValidateAccessToken(c.Request().Context(), token)
	if err != nil {
		return s.writeError(c, err, "invalid or expired token")
	}
	return c.JSON(http.StatusOK, validateResponse{UserID: userID})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return t, t != ""
}
