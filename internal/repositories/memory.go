package repositories

import (
	"context"
	"sync"
	"time"

	"todo-api/backend/internal/models"

	"github.com/gofrs/uuid"
)

// MemoryTodoRepository keeps todos in process memory, in insertion order.
type MemoryTodoRepository struct {
	mu    sync.Mutex
	order []uuid.UUID
	store map[uuid.UUID]models.Todo
}

func NewMemoryTodoRepository() *MemoryTodoRepository {
	return &MemoryTodoRepository{
		store: make(map[uuid.UUID]models.Todo),
	}
}

func (r *MemoryTodoRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	todo, ok := r.store[id]
	if !ok || !todo.OwnedBy(ownerID) {
		return nil, ErrTodoNotFound
	}
	return cloneTodo(todo), nil
}

func (r *MemoryTodoRepository) FindAllByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.Todo{}
	for _, id := range r.order {
		if todo := r.store[id]; todo.OwnedBy(ownerID) {
			out = append(out, *cloneTodo(todo))
		}
	}
	return out, nil
}

func (r *MemoryTodoRepository) Save(ctx context.Context, todo *models.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if todo.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		todo.ID = id
		todo.CreatedAt = now
		todo.UpdatedAt = now
		r.order = append(r.order, id)
		r.store[id] = *cloneTodo(*todo)
		return nil
	}

	existing, ok := r.store[todo.ID]
	if !ok || (todo.OwnerID != nil && !existing.OwnedBy(*todo.OwnerID)) {
		return ErrTodoNotFound
	}
	existing.Task = todo.Task
	existing.Completed = todo.Completed
	existing.UpdatedAt = now
	r.store[todo.ID] = existing

	todo.CreatedAt = existing.CreatedAt
	todo.UpdatedAt = now
	return nil
}

func (r *MemoryTodoRepository) Delete(ctx context.Context, todo *models.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.store[todo.ID]
	if !ok || (todo.OwnerID != nil && !existing.OwnedBy(*todo.OwnerID)) {
		return ErrTodoNotFound
	}
	delete(r.store, todo.ID)
	for i, id := range r.order {
		if id == todo.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func cloneTodo(t models.Todo) *models.Todo {
	c := t
	if t.OwnerID != nil {
		owner := *t.OwnerID
		c.OwnerID = &owner
	}
	return &c
}
