package todo

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/models"
)

// MemoryStore keeps todos in process memory. It orders results the same way
// the Postgres repository does: nulls last, then id ascending.
type MemoryStore struct {
	mu    sync.RWMutex
	todos map[uuid.UUID]models.Todo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{todos: make(map[uuid.UUID]models.Todo)}
}

func (s *MemoryStore) Create(_ context.Context, todo *models.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos[todo.ID] = *todo
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID, id uuid.UUID) (*models.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.todos[id]
	if !ok || t.UserID != userID {
		return nil, models.ErrTodoNotFound
	}
	return &t, nil
}

func (s *MemoryStore) List(_ context.Context, userID uuid.UUID, f models.TodoFilter) ([]models.Todo, int, error) {
	s.mu.RLock()
	matched := make([]models.Todo, 0)
	for _, t := range s.todos {
		if t.UserID != userID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		matched = append(matched, t)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b models.Todo) int {
		if c := compareTodos(a, b, f.SortBy, f.SortDesc); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return matched[start:end], total, nil
}

// compareTodos compares by the sort field. A nil due date sorts last in
// either direction.
func compareTodos(a, b models.Todo, sortBy string, desc bool) int {
	if sortBy == "due_date" {
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
	}

	var c int
	switch sortBy {
	case "due_date":
		c = a.DueDate.Compare(*b.DueDate)
	case "title":
		c = cmp.Compare(a.Title, b.Title)
	case "priority":
		c = cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if desc {
		return -c
	}
	return c
}

func (s *MemoryStore) Update(_ context.Context, todo *models.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.todos[todo.ID]
	if !ok || existing.UserID != todo.UserID {
		return models.ErrTodoNotFound
	}
	updated := *todo
	updated.CreatedAt = existing.CreatedAt
	s.todos[todo.ID] = updated
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.todos[id]
	if !ok || t.UserID != userID {
		return models.ErrTodoNotFound
	}
	delete(s.todos, id)
	return nil
}
