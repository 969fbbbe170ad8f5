package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"todo-api/backend/internal/config"
	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
	cookie      config.AuthConfig
	logger      *slog.Logger
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User      UserProfileResponse `json:"user"`
	ExpiresAt time.Time           `json:"expires_at"`
}

func NewAuthHandler(authService services.AuthService, cookie config.AuthConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authService: authService, cookie: cookie, logger: logger}
}

// Login checks credentials and starts a session, returned to the client as
// an HttpOnly cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	user, err := h.authService.Authenticate(ctx, strings.TrimSpace(req.Username), req.Password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid username/password."})
		return
	case errors.Is(err, services.ErrInactiveUser):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User inactive or deleted."})
		return
	case err != nil:
		internalError(c, h.logger, "login failed", err)
		return
	}

	token, session, err := h.authService.CreateSession(ctx, user, services.SessionMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		internalError(c, h.logger, "failed to create session", err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName(), token, int(time.Until(session.ExpiresAt).Seconds()), "/", "", h.cookie.SecureCookies, true)

	h.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID.String()))
	c.JSON(http.StatusOK, LoginResponse{
		User:      newUserProfileResponse(user),
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *AuthHandler) cookieName() string {
	if h.cookie.SessionCookieName == "" {
		return "sessionid"
	}
	return h.cookie.SessionCookieName
}

func clearSessionCookie(c *gin.Context, cfg config.AuthConfig) {
	name := cfg.SessionCookieName
	if name == "" {
		name = "sessionid"
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", cfg.SecureCookies, true)
}
