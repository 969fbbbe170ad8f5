package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"todo-api/backend/internal/cache"
	"todo-api/backend/internal/models"
	"todo-api/backend/internal/serializers"

	"github.com/gofrs/uuid"
)

const (
	todoListTTL = 5 * time.Minute
	todoItemTTL = 15 * time.Minute
)

// CachedTodoService wraps a TodoService with read-through caching. Every
// key carries the owner id and that owner's cache generation. Writes bump
// the generation, so entries stored by reads that raced with a write are
// left behind under a key nothing asks for again. Cache failures are
// logged and never fail the request.
type CachedTodoService struct {
	todoService TodoService
	cache       cache.Cache
	logger      *slog.Logger
}

func NewCachedTodoService(todoService TodoService, cacheInstance cache.Cache, logger *slog.Logger) *CachedTodoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedTodoService{
		todoService: todoService,
		cache:       cacheInstance,
		logger:      logger,
	}
}

func generationKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("todos:%s:gen", ownerID)
}

func todoListKey(ownerID uuid.UUID, gen int64) string {
	return fmt.Sprintf("todos:%s:g%d:list", ownerID, gen)
}

func todoItemKey(ownerID uuid.UUID, gen int64, id uuid.UUID) string {
	return fmt.Sprintf("todos:%s:g%d:item:%s", ownerID, gen, id)
}

func entryPattern(ownerID uuid.UUID) string {
	return fmt.Sprintf("todos:%s:g*", ownerID)
}

func (s *CachedTodoService) List(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	gen, ok := s.generation(ctx, ownerID)
	if !ok {
		return s.todoService.List(ctx, ownerID)
	}
	key := todoListKey(ownerID, gen)

	var cached []models.Todo
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	todos, err := s.todoService.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, todos, todoListTTL)
	return todos, nil
}

func (s *CachedTodoService) Create(ctx context.Context, ownerID uuid.UUID, in serializers.TodoInput) (*models.Todo, error) {
	todo, err := s.todoService.Create(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}

	s.InvalidateOwner(ctx, ownerID)
	return todo, nil
}

func (s *CachedTodoService) Retrieve(ctx context.Context, id, ownerID uuid.UUID) (*models.Todo, error) {
	gen, ok := s.generation(ctx, ownerID)
	if !ok {
		return s.todoService.Retrieve(ctx, id, ownerID)
	}
	key := todoItemKey(ownerID, gen, id)

	var cached models.Todo
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	todo, err := s.todoService.Retrieve(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, todo, todoItemTTL)
	return todo, nil
}

func (s *CachedTodoService) Update(ctx context.Context, id, ownerID uuid.UUID, in serializers.TodoInput, partial bool) (*models.Todo, error) {
	todo, err := s.todoService.Update(ctx, id, ownerID, in, partial)
	if err != nil {
		return nil, err
	}

	s.InvalidateOwner(ctx, ownerID)
	return todo, nil
}

func (s *CachedTodoService) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	if err := s.todoService.Delete(ctx, id, ownerID); err != nil {
		return err
	}

	s.InvalidateOwner(ctx, ownerID)
	return nil
}

// InvalidateOwner moves ownerID to a fresh generation. If the bump fails
// the current entries are deleted instead.
func (s *CachedTodoService) InvalidateOwner(ctx context.Context, ownerID uuid.UUID) {
	_, err := s.cache.BumpGeneration(ctx, generationKey(ownerID))
	if err == nil {
		return
	}
	s.logger.WarnContext(ctx, "todo cache generation bump failed",
		slog.String("owner_id", ownerID.String()),
		slog.String("error", err.Error()))

	if err := s.cache.DeletePattern(ctx, entryPattern(ownerID)); err != nil {
		s.logger.ErrorContext(ctx, "todo cache invalidation failed",
			slog.String("owner_id", ownerID.String()),
			slog.String("error", err.Error()))
	}
}

// generation must be read before storage. ok is false when the counter
// cannot be read, and the caller goes straight to storage.
func (s *CachedTodoService) generation(ctx context.Context, ownerID uuid.UUID) (gen int64, ok bool) {
	gen, err := s.cache.Generation(ctx, generationKey(ownerID))
	if err != nil {
		s.logger.DebugContext(ctx, "todo cache bypassed",
			slog.String("owner_id", ownerID.String()),
			slog.String("error", err.Error()))
		return 0, false
	}
	return gen, true
}

func (s *CachedTodoService) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.DebugContext(ctx, "todo cache write skipped",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
