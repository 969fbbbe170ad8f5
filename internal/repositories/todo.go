package repositories

import (
	"context"
	"errors"
	"fmt"

	"todo-api/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// ErrTodoNotFound covers both missing todos and todos owned by someone else.
var ErrTodoNotFound = errors.New("todo not found")

// TodoRepository is the storage capability the todo endpoints depend on.
// Every lookup is scoped to an owner.
type TodoRepository interface {
	FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.Todo, error)
	FindAllByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error)
	Save(ctx context.Context, todo *models.Todo) error
	Delete(ctx context.Context, todo *models.Todo) error
}

type GormTodoRepository struct {
	db *gorm.DB
}

func NewGormTodoRepository(db *gorm.DB) *GormTodoRepository {
	return &GormTodoRepository{db: db}
}

func (r *GormTodoRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.Todo, error) {
	var todo models.Todo
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&todo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTodoNotFound
		}
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	return &todo, nil
}

func (r *GormTodoRepository) FindAllByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	todos := []models.Todo{}
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&todos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return todos, nil
}

// Save inserts todos without an ID and updates the rest in place.
func (r *GormTodoRepository) Save(ctx context.Context, todo *models.Todo) error {
	db := r.db.WithContext(ctx)
	if todo.ID == uuid.Nil {
		if err := db.Create(todo).Error; err != nil {
			return fmt.Errorf("failed to create todo: %w", err)
		}
		return nil
	}

	query := db.Model(todo)
	if todo.OwnerID != nil {
		query = query.Where("owner_id = ?", *todo.OwnerID)
	}
	result := query.Select("task", "completed", "updated_at").Updates(todo)
	if result.Error != nil {
		return fmt.Errorf("failed to update todo: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTodoNotFound
	}
	return nil
}

func (r *GormTodoRepository) Delete(ctx context.Context, todo *models.Todo) error {
	query := r.db.WithContext(ctx).Where("id = ?", todo.ID)
	if todo.OwnerID != nil {
		query = query.Where("owner_id = ?", *todo.OwnerID)
	}

	result := query.Delete(&models.Todo{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete todo: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTodoNotFound
	}
	return nil
}
