package handlers

import (
	"log/slog"
	"net/http"

	"todo-api/backend/internal/config"
	"todo-api/backend/internal/middleware"
	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type LogoutHandler struct {
	authService services.AuthService
	cookie      config.AuthConfig
	logger      *slog.Logger
}

func NewLogoutHandler(authService services.AuthService, cookie config.AuthConfig, logger *slog.Logger) *LogoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogoutHandler{authService: authService, cookie: cookie, logger: logger}
}

// Logout ends the session the request was authenticated with, if any.
// Basic-authenticated callers have nothing to revoke and still get 200.
func (h *LogoutHandler) Logout(c *gin.Context) {
	if sessionID, ok := middleware.CurrentSessionID(c); ok {
		if err := h.authService.RevokeSession(c.Request.Context(), sessionID); err != nil {
			internalError(c, h.logger, "failed to revoke session", err)
			return
		}
	}

	clearSessionCookie(c, h.cookie)
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
