package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"todo-api/backend/internal/config"
	"todo-api/backend/internal/models"
	"todo-api/backend/internal/repositories"
	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type UserProfileResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FullName    string     `json:"full_name"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
	DateJoined  time.Time  `json:"date_joined"`
}

func newUserProfileResponse(user *models.User) UserProfileResponse {
	return UserProfileResponse{
		ID:          user.ID.String(),
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		FullName:    user.FullName(),
		IsActive:    user.IsActive,
		LastLoginAt: user.LastLoginAt,
		DateJoined:  user.CreatedAt,
	}
}

type UserHandler struct {
	userService services.UserService
	cookie      config.AuthConfig
	logger      *slog.Logger
}

func NewUserHandler(userService services.UserService, cookie config.AuthConfig, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{userService: userService, cookie: cookie, logger: logger}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		internalError(c, h.logger, "failed to get user profile", err)
		return
	}
	c.JSON(http.StatusOK, newUserProfileResponse(user))
}

// DeleteMe removes the caller's account. Their todos and sessions go with
// it.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	userID, ok := requireOwner(c)
	if !ok {
		return
	}

	if err := h.userService.DeleteAccount(c.Request.Context(), userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		internalError(c, h.logger, "failed to delete account", err)
		return
	}

	h.logger.InfoContext(c.Request.Context(), "account deleted", slog.String("user_id", userID.String()))
	clearSessionCookie(c, h.cookie)
	c.JSON(http.StatusOK, gin.H{"response": "deleted"})
}
