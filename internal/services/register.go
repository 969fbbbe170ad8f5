package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"todo-api/backend/internal/models"
	"todo-api/backend/internal/repositories"
)

var (
	ErrDuplicateUsername = repositories.ErrDuplicateUsername
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrInvalidUsername   = errors.New("username may contain only letters, numbers, and @/./+/-/_ characters")
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

type RegistrationRequest struct {
	Username  string `json:"username" binding:"required,min=3,max=150"`
	Email     string `json:"email" binding:"omitempty,email,max=254"`
	Password  string `json:"password" binding:"required,min=8,max=128"`
	FirstName string `json:"first_name,omitempty" binding:"max=150"`
	LastName  string `json:"last_name,omitempty" binding:"max=150"`
}

type RegisterService interface {
	RegisterUser(ctx context.Context, req RegistrationRequest) (*models.User, error)
}

type RegisterServiceImpl struct {
	users      repositories.UserRepository
	bcryptCost int
}

func NewRegisterService(users repositories.UserRepository, bcryptCost int) *RegisterServiceImpl {
	return &RegisterServiceImpl{users: users, bcryptCost: bcryptCost}
}

func (s *RegisterServiceImpl) RegisterUser(ctx context.Context, req RegistrationRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}

	taken, err := s.users.EmailTaken(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateEmail
	}

	hashedPassword, err := HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:  username,
		Email:     email,
		Password:  hashedPassword,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		IsActive:  true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}
