package todo

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/models"
)

// Store persists todos. Every method is scoped to one owner: a todo that
// belongs to another user is reported as models.ErrTodoNotFound.
type Store interface {
	Create(ctx context.Context, todo *models.Todo) error
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Todo, error)
	List(ctx context.Context, userID uuid.UUID, filter models.TodoFilter) ([]models.Todo, int, error)
	Update(ctx context.Context, todo *models.Todo) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}
