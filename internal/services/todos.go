package services

import (
	"context"

	"todo-api/backend/internal/models"
	"todo-api/backend/internal/repositories"
	"todo-api/backend/internal/serializers"

	"github.com/gofrs/uuid"
)

// TodoService is the owner-scoped todo workflow behind the list and detail
// endpoints. A todo that does not exist and one owned by someone else both
// come back as repositories.ErrTodoNotFound.
type TodoService interface {
	List(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error)
	Create(ctx context.Context, ownerID uuid.UUID, in serializers.TodoInput) (*models.Todo, error)
	Retrieve(ctx context.Context, id, ownerID uuid.UUID) (*models.Todo, error)
	Update(ctx context.Context, id, ownerID uuid.UUID, in serializers.TodoInput, partial bool) (*models.Todo, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
}

type TodoServiceImpl struct {
	repo       repositories.TodoRepository
	serializer *serializers.TodoSerializer
}

func NewTodoService(repo repositories.TodoRepository, serializer *serializers.TodoSerializer) *TodoServiceImpl {
	return &TodoServiceImpl{repo: repo, serializer: serializer}
}

func (s *TodoServiceImpl) List(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	return s.repo.FindAllByOwner(ctx, ownerID)
}

// Create stores a new todo for ownerID. Any owner in the input is ignored.
func (s *TodoServiceImpl) Create(ctx context.Context, ownerID uuid.UUID, in serializers.TodoInput) (*models.Todo, error) {
	owner := ownerID
	return s.serializer.Save(ctx, &models.Todo{OwnerID: &owner}, in, false)
}

func (s *TodoServiceImpl) Retrieve(ctx context.Context, id, ownerID uuid.UUID) (*models.Todo, error) {
	return s.repo.FindByIDAndOwner(ctx, id, ownerID)
}

func (s *TodoServiceImpl) Update(ctx context.Context, id, ownerID uuid.UUID, in serializers.TodoInput, partial bool) (*models.Todo, error) {
	todo, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.serializer.Save(ctx, todo, in, partial)
}

func (s *TodoServiceImpl) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	todo, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, todo)
}
