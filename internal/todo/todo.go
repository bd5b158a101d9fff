// Package todo implements per-user task CRUD on top of a Store, and the HTTP
// handlers that expose it to authenticated users.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/models"
)

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid todo: %d field(s) rejected", len(e.Fields))
}

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type CreateInput struct {
	Title       string              `json:"title"`
	Description *string             `json:"description"`
	Priority    models.TodoPriority `json:"priority"`
	DueDate     *time.Time          `json:"due_date"`
}

// UpdateInput changes only the fields that are present. An explicit null
// clears the description or due date.
type UpdateInput struct {
	Title       *string              `json:"title"`
	Description Optional[string]     `json:"description"`
	Status      *models.TodoStatus   `json:"status"`
	Priority    *models.TodoPriority `json:"priority"`
	DueDate     Optional[time.Time]  `json:"due_date"`
}

type ListQuery struct {
	Page      int
	PerPage   int
	Status    string
	Priority  string
	SortBy    string
	SortOrder string
}

type Page struct {
	Items   []models.Todo `json:"items"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	Pages   int           `json:"pages"`
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// timestamp matches the microsecond precision Postgres stores.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Todo, error) {
	fields := map[string]any{}

	title := CleanText(in.Title)
	validateTitle(title, fields)
	desc := cleanOptional(in.Description)
	validateDescription(desc, fields)

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	validatePriority(priority, fields)

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	now := s.timestamp()
	todo := &models.Todo{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: desc,
		Status:      models.StatusPending,
		Priority:    priority,
		DueDate:     utcPtr(in.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, todo); err != nil {
		return nil, err
	}
	return todo, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.Todo, error) {
	return s.store.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, q ListQuery) (*Page, error) {
	fields := map[string]any{}

	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		fields["page"] = "must be at least 1"
	}
	if q.PerPage == 0 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage < 1 || q.PerPage > MaxPerPage {
		fields["per_page"] = "must be between 1 and 100"
	}

	filter := models.TodoFilter{
		Status:   models.TodoStatus(q.Status),
		Priority: models.TodoPriority(q.Priority),
		SortBy:   q.SortBy,
	}
	if filter.Status != "" {
		validateStatus(filter.Status, fields)
	}
	if filter.Priority != "" {
		validatePriority(filter.Priority, fields)
	}
	if filter.SortBy == "" {
		filter.SortBy = "created_at"
	}
	if !sortFields[filter.SortBy] {
		fields["sort_by"] = "must be one of created_at, due_date, priority, title"
	}
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
		filter.SortDesc = true
	case "asc":
	default:
		fields["sort_order"] = "must be asc or desc"
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	filter.Limit = q.PerPage
	filter.Offset = (q.Page - 1) * q.PerPage

	items, total, err := s.store.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Todo{}
	}

	pages := 1
	if total > 0 {
		pages = (total + q.PerPage - 1) / q.PerPage
	}
	return &Page{Items: items, Total: total, Page: q.Page, PerPage: q.PerPage, Pages: pages}, nil
}

func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (*models.Todo, error) {
	fields := map[string]any{}

	var title string
	if in.Title != nil {
		title = CleanText(*in.Title)
		validateTitle(title, fields)
	}
	var desc *string
	if in.Description.Set {
		desc = cleanOptional(in.Description.Value)
		validateDescription(desc, fields)
	}
	if in.Status != nil {
		validateStatus(*in.Status, fields)
	}
	if in.Priority != nil {
		validatePriority(*in.Priority, fields)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	todo, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	if in.Title != nil {
		todo.Title = title
	}
	if in.Description.Set {
		todo.Description = desc
	}
	if in.Priority != nil {
		todo.Priority = *in.Priority
	}
	if in.DueDate.Set {
		todo.DueDate = utcPtr(in.DueDate.Value)
	}
	if in.Status != nil {
		todo.Status = *in.Status
		if todo.Status == models.StatusCompleted {
			if todo.CompletedAt == nil {
				todo.CompletedAt = &now
			}
		} else {
			todo.CompletedAt = nil
		}
	}
	todo.UpdatedAt = now

	if err := s.store.Update(ctx, todo); err != nil {
		return nil, err
	}
	return todo, nil
}

// Complete marks the todo completed and stamps the completion time, even
// when it was already completed.
func (s *Service) Complete(ctx context.Context, userID, id uuid.UUID) (*models.Todo, error) {
	todo, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	todo.Status = models.StatusCompleted
	todo.CompletedAt = &now
	todo.UpdatedAt = now

	if err := s.store.Update(ctx, todo); err != nil {
		return nil, err
	}
	return todo, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.Delete(ctx, userID, id)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Microsecond)
	return &u
}
