package todo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskvault/backend/internal/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(NewMemoryStore())
	svc.now = c.now
	return svc, c
}

func strPtr(s string) *string { return &s }

func TestService_CreateDefaults(t *testing.T) {
	svc, c := newTestService(t)
	owner := uuid.New()

	todo, err := svc.Create(context.Background(), owner, CreateInput{Title: "  Buy milk  "})
	require.NoError(t, err)

	assert.Equal(t, "Buy milk", todo.Title)
	assert.Equal(t, models.StatusPending, todo.Status)
	assert.Equal(t, models.PriorityMedium, todo.Priority)
	assert.Equal(t, owner, todo.UserID)
	assert.Nil(t, todo.Description)
	assert.Nil(t, todo.CompletedAt)
	assert.Equal(t, c.t, todo.CreatedAt)
	assert.Equal(t, todo.CreatedAt, todo.UpdatedAt)
}

func TestService_CreateCleansText(t *testing.T) {
	svc, _ := newTestService(t)

	todo, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Title:       "<b>Call</b> Mom & Dad<script>alert(1)</script>",
		Description: strPtr("Café <i>booking</i>"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Call Mom & Dad", todo.Title)
	require.NotNil(t, todo.Description)
	assert.Equal(t, "Café booking", *todo.Description)
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"empty title", CreateInput{Title: ""}, "title"},
		{"markup only title", CreateInput{Title: "<p></p>"}, "title"},
		{"long title", CreateInput{Title: strings.Repeat("a", MaxTitleLength+1)}, "title"},
		{"long description", CreateInput{Title: "ok", Description: strPtr(strings.Repeat("d", MaxDescriptionLength+1))}, "description"},
		{"bad priority", CreateInput{Title: "ok", Priority: "urgent"}, "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), uuid.New(), tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestService_TitleLengthCountsCharacters(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{Title: strings.Repeat("é", MaxTitleLength)})
	assert.NoError(t, err)
}

func TestService_UpdateStatusTransitions(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	todo, err := svc.Create(ctx, owner, CreateInput{Title: "Write report"})
	require.NoError(t, err)

	completed := models.StatusCompleted
	c.advance(time.Minute)
	updated, err := svc.Update(ctx, owner, todo.ID, UpdateInput{Status: &completed})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	firstCompletion := *updated.CompletedAt
	assert.Equal(t, c.t, firstCompletion)

	c.advance(time.Minute)
	updated, err = svc.Update(ctx, owner, todo.ID, UpdateInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, firstCompletion, *updated.CompletedAt)

	inProgress := models.StatusInProgress
	updated, err = svc.Update(ctx, owner, todo.ID, UpdateInput{Status: &inProgress})
	require.NoError(t, err)
	assert.Nil(t, updated.CompletedAt)
	assert.Equal(t, c.t, updated.UpdatedAt)
}

func TestService_UpdateIsPartial(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	due := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	todo, err := svc.Create(ctx, owner, CreateInput{Title: "Plan trip", Description: strPtr("flights"), DueDate: &due})
	require.NoError(t, err)

	high := models.PriorityHigh
	updated, err := svc.Update(ctx, owner, todo.ID, UpdateInput{Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, "Plan trip", updated.Title)
	assert.Equal(t, "flights", *updated.Description)
	assert.Equal(t, due, *updated.DueDate)
	assert.Equal(t, models.PriorityHigh, updated.Priority)

	updated, err = svc.Update(ctx, owner, todo.ID, UpdateInput{
		Description: Optional[string]{Set: true},
		DueDate:     Optional[time.Time]{Set: true},
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Description)
	assert.Nil(t, updated.DueDate)
}

func TestService_UpdateRejectsInvalidFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	todo, err := svc.Create(ctx, owner, CreateInput{Title: "Keep"})
	require.NoError(t, err)

	bogus := models.TodoStatus("archived")
	_, err = svc.Update(ctx, owner, todo.ID, UpdateInput{Title: strPtr(" "), Status: &bogus})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "status")

	got, err := svc.Get(ctx, owner, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep", got.Title)
}

func TestService_Complete(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	todo, err := svc.Create(ctx, owner, CreateInput{Title: "Ship"})
	require.NoError(t, err)

	c.advance(time.Hour)
	done, err := svc.Complete(ctx, owner, todo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, c.t, *done.CompletedAt)
}

func TestService_OtherUsersTodosAreNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner, intruder := uuid.New(), uuid.New()

	todo, err := svc.Create(ctx, owner, CreateInput{Title: "Private"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, intruder, todo.ID)
	assert.ErrorIs(t, err, models.ErrTodoNotFound)

	title := "Hijacked"
	_, err = svc.Update(ctx, intruder, todo.ID, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, models.ErrTodoNotFound)

	_, err = svc.Complete(ctx, intruder, todo.ID)
	assert.ErrorIs(t, err, models.ErrTodoNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, intruder, todo.ID), models.ErrTodoNotFound)

	page, err := svc.List(ctx, intruder, ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	require.NoError(t, svc.Delete(ctx, owner, todo.ID))
	_, err = svc.Get(ctx, owner, todo.ID)
	assert.ErrorIs(t, err, models.ErrTodoNotFound)
}

func TestService_ListPagination(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, owner, CreateInput{Title: string(rune('a' + i))})
		require.NoError(t, err)
		c.advance(time.Second)
	}

	page, err := svc.List(ctx, owner, ListQuery{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Items, 2)
	// newest first by default
	assert.Equal(t, "c", page.Items[0].Title)
	assert.Equal(t, "b", page.Items[1].Title)

	page, err = svc.List(ctx, owner, ListQuery{Page: 9, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)

	empty, err := svc.List(ctx, uuid.New(), ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, empty.Pages)
	assert.Equal(t, DefaultPerPage, empty.PerPage)
}

func TestService_ListFiltersAndSorts(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	soon := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	inputs := []CreateInput{
		{Title: "low later", Priority: models.PriorityLow, DueDate: &later},
		{Title: "high none", Priority: models.PriorityHigh},
		{Title: "medium soon", Priority: models.PriorityMedium, DueDate: &soon},
	}
	for _, in := range inputs {
		_, err := svc.Create(ctx, owner, in)
		require.NoError(t, err)
		c.advance(time.Second)
	}

	titles := func(p *Page) []string {
		out := make([]string, 0, len(p.Items))
		for _, t := range p.Items {
			out = append(out, t.Title)
		}
		return out
	}

	page, err := svc.List(ctx, owner, ListQuery{SortBy: "priority", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"low later", "medium soon", "high none"}, titles(page))

	page, err = svc.List(ctx, owner, ListQuery{SortBy: "due_date", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"medium soon", "low later", "high none"}, titles(page))

	page, err = svc.List(ctx, owner, ListQuery{SortBy: "due_date", SortOrder: "desc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"low later", "medium soon", "high none"}, titles(page))

	page, err = svc.List(ctx, owner, ListQuery{Priority: "high"})
	require.NoError(t, err)
	assert.Equal(t, []string{"high none"}, titles(page))
	assert.Equal(t, 1, page.Total)
}

func TestService_ListValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name  string
		q     ListQuery
		field string
	}{
		{"per page too large", ListQuery{PerPage: MaxPerPage + 1}, "per_page"},
		{"negative page", ListQuery{Page: -1}, "page"},
		{"unknown sort", ListQuery{SortBy: "user_id"}, "sort_by"},
		{"unknown order", ListQuery{SortOrder: "sideways"}, "sort_order"},
		{"unknown status", ListQuery{Status: "done"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.List(context.Background(), uuid.New(), tt.q)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}
