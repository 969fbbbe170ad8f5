package serializers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"todo-api/backend/internal/models"
	"todo-api/backend/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
)

// TodoInput is the client-supplied body for create and update. Nil fields
// were not sent. Owner is read so it can be dropped; the caller's identity
// always wins.
type TodoInput struct {
	Task      *string     `json:"task"`
	Completed *bool       `json:"completed"`
	Owner     interface{} `json:"owner,omitempty"`
}

type TodoRepresentation struct {
	ID        uuid.UUID  `json:"id"`
	Task      string     `json:"task"`
	Completed bool       `json:"completed"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Owner     *uuid.UUID `json:"owner"`
}

type TodoSerializer struct {
	repo     repositories.TodoRepository
	validate *validator.Validate
	taskRule string
}

func NewTodoSerializer(repo repositories.TodoRepository) *TodoSerializer {
	return &TodoSerializer{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		taskRule: fmt.Sprintf("required,max=%d", models.MaxTaskLength),
	}
}

func (s *TodoSerializer) ToRepresentation(todo *models.Todo) TodoRepresentation {
	return TodoRepresentation{
		ID:        todo.ID,
		Task:      todo.Task,
		Completed: todo.Completed,
		CreatedAt: todo.CreatedAt,
		UpdatedAt: todo.UpdatedAt,
		Owner:     todo.OwnerID,
	}
}

func (s *TodoSerializer) ToRepresentationList(todos []models.Todo) []TodoRepresentation {
	out := make([]TodoRepresentation, 0, len(todos))
	for i := range todos {
		out = append(out, s.ToRepresentation(&todos[i]))
	}
	return out
}

// Validate checks in against the todo rules. With partial set, only the
// fields present in the input are checked. It returns nil when the input
// is valid.
func (s *TodoSerializer) Validate(in TodoInput, partial bool) ValidationErrors {
	errs := ValidationErrors{}

	if in.Task == nil {
		if !partial {
			errs.Add("task", "This field is required.")
		}
	} else if err := s.validate.Var(strings.TrimSpace(*in.Task), s.taskRule); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs.Add("task", taskMessage(fe))
			}
		} else {
			errs.Add("task", err.Error())
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func taskMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field may not be blank."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	default:
		return fmt.Sprintf("Failed %q validation.", fe.Tag())
	}
}

// Save validates in, applies it to instance and persists the result. A nil
// instance or one without an ID is created; anything else is updated in
// place. Invalid input is returned as ValidationErrors and nothing is
// written.
func (s *TodoSerializer) Save(ctx context.Context, instance *models.Todo, in TodoInput, partial bool) (*models.Todo, error) {
	if instance == nil {
		instance = &models.Todo{}
	}
	if instance.ID == uuid.Nil {
		partial = false
	}

	if errs := s.Validate(in, partial); errs != nil {
		return nil, errs
	}

	if in.Task != nil {
		instance.Task = strings.TrimSpace(*in.Task)
	}
	if in.Completed != nil {
		instance.Completed = *in.Completed
	}

	if err := s.repo.Save(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}
