package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"todo-api/backend/internal/middleware"
	"todo-api/backend/internal/repositories"
	"todo-api/backend/internal/serializers"
	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// notFoundResponse is what the detail endpoint answers for ids that do not
// exist or are not the caller's. Clients depend on the 400 status.
var notFoundResponse = gin.H{"response": "not found"}

type TodoListHandler struct {
	todoService services.TodoService
	serializer  *serializers.TodoSerializer
	logger      *slog.Logger
}

func NewTodoListHandler(todoService services.TodoService, serializer *serializers.TodoSerializer, logger *slog.Logger) *TodoListHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TodoListHandler{todoService: todoService, serializer: serializer, logger: logger}
}

func (h *TodoListHandler) List(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	todos, err := h.todoService.List(c.Request.Context(), ownerID)
	if err != nil {
		internalError(c, h.logger, "failed to list todos", err)
		return
	}
	c.JSON(http.StatusOK, h.serializer.ToRepresentationList(todos))
}

func (h *TodoListHandler) Create(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	in, ok := bindTodoInput(c)
	if !ok {
		return
	}

	todo, err := h.todoService.Create(c.Request.Context(), ownerID, in)
	if err != nil {
		var verrs serializers.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, verrs)
			return
		}
		internalError(c, h.logger, "failed to create todo", err)
		return
	}
	c.JSON(http.StatusCreated, h.serializer.ToRepresentation(todo))
}

type TodoDetailHandler struct {
	todoService services.TodoService
	serializer  *serializers.TodoSerializer
	logger      *slog.Logger
}

func NewTodoDetailHandler(todoService services.TodoService, serializer *serializers.TodoSerializer, logger *slog.Logger) *TodoDetailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TodoDetailHandler{todoService: todoService, serializer: serializer, logger: logger}
}

func (h *TodoDetailHandler) Retrieve(c *gin.Context) {
	ownerID, id, ok := h.target(c)
	if !ok {
		return
	}

	todo, err := h.todoService.Retrieve(c.Request.Context(), id, ownerID)
	if err != nil {
		h.handleError(c, err, "failed to retrieve todo")
		return
	}
	c.JSON(http.StatusOK, h.serializer.ToRepresentation(todo))
}

// Update applies a partial update: fields missing from the body keep their
// stored values. PUT and PATCH both route here.
func (h *TodoDetailHandler) Update(c *gin.Context) {
	ownerID, id, ok := h.target(c)
	if !ok {
		return
	}

	in, ok := bindTodoInput(c)
	if !ok {
		return
	}

	todo, err := h.todoService.Update(c.Request.Context(), id, ownerID, in, true)
	if err != nil {
		h.handleError(c, err, "failed to update todo")
		return
	}
	c.JSON(http.StatusOK, h.serializer.ToRepresentation(todo))
}

func (h *TodoDetailHandler) Delete(c *gin.Context) {
	ownerID, id, ok := h.target(c)
	if !ok {
		return
	}

	if err := h.todoService.Delete(c.Request.Context(), id, ownerID); err != nil {
		h.handleError(c, err, "failed to delete todo")
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": "deleted"})
}

// target resolves the caller and the :id parameter. Ids that are not valid
// UUIDs cannot match a record and get the not-found response.
func (h *TodoDetailHandler) target(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, notFoundResponse)
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, id, true
}

func (h *TodoDetailHandler) handleError(c *gin.Context, err error, msg string) {
	var verrs serializers.ValidationErrors
	switch {
	case errors.Is(err, repositories.ErrTodoNotFound):
		c.JSON(http.StatusBadRequest, notFoundResponse)
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, verrs)
	default:
		internalError(c, h.logger, msg, err)
	}
}

func bindTodoInput(c *gin.Context) (serializers.TodoInput, bool) {
	var in serializers.TodoInput
	err := c.ShouldBindJSON(&in)
	if err == nil || errors.Is(err, io.EOF) {
		return in, true
	}

	if verrs, ok := serializers.FromBindError(err); ok {
		c.JSON(http.StatusBadRequest, verrs)
		return in, false
	}
	c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON parse error - " + err.Error()})
	return in, false
}

func requireOwner(c *gin.Context) (uuid.UUID, bool) {
	ownerID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
		return uuid.Nil, false
	}
	return ownerID, true
}

func internalError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(c.Request.Context(), msg, slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
