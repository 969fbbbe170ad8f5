package services

import (
	"context"

	"todo-api/backend/internal/models"
	"todo-api/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

// OwnerCacheInvalidator drops cached data for an owner. CachedTodoService
// implements it.
type OwnerCacheInvalidator interface {
	InvalidateOwner(ctx context.Context, ownerID uuid.UUID)
}

type UserService interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.User, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

type UserServiceImpl struct {
	users       repositories.UserRepository
	invalidator OwnerCacheInvalidator
}

func NewUserService(users repositories.UserRepository, invalidator OwnerCacheInvalidator) *UserServiceImpl {
	return &UserServiceImpl{users: users, invalidator: invalidator}
}

func (s *UserServiceImpl) GetProfile(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.FindByID(ctx, id)
}

// DeleteAccount removes the user along with every todo and session they
// own.
func (s *UserServiceImpl) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := s.users.DeleteWithOwnedData(ctx, id); err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateOwner(ctx, id)
	}
	return nil
}
