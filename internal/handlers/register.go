package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type RegisterHandler struct {
	registerService services.RegisterService
	logger          *slog.Logger
}

func NewRegisterHandler(registerService services.RegisterService, logger *slog.Logger) *RegisterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterHandler{registerService: registerService, logger: logger}
}

type RegistrationResponse struct {
	Message string              `json:"message"`
	User    UserProfileResponse `json:"user"`
}

func (h *RegisterHandler) Registration(c *gin.Context) {
	var req services.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	user, err := h.registerService.RegisterUser(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidUsername):
			c.JSON(http.StatusBadRequest, gin.H{"username": []string{err.Error()}})
		case errors.Is(err, services.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "Registration failed",
				"details": "An account with this email already exists",
			})
		case errors.Is(err, services.ErrDuplicateUsername):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "Registration failed",
				"details": "This username is already taken",
			})
		default:
			internalError(c, h.logger, "registration failed", err)
		}
		return
	}

	h.logger.InfoContext(c.Request.Context(), "user registered", slog.String("user_id", user.ID.String()))
	c.JSON(http.StatusCreated, RegistrationResponse{
		Message: "Your account has been created successfully.",
		User:    newUserProfileResponse(user),
	})
}
