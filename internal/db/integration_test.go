//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/taskvault/backend/internal/db"
	"github.com/taskvault/backend/internal/models"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("taskvault"),
		postgres.WithUsername("taskvault"),
		postgres.WithPassword("taskvault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func openMigrated(t *testing.T) *db.DB {
	t.Helper()
	url := startPostgres(t)
	require.NoError(t, db.RunMigrations(url))

	d, err := db.Open(context.Background(), url, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func newUser(t *testing.T, users *db.UserRepository, email string) *models.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := &models.User{ID: uuid.New(), Email: email, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestMigrator_FullCycle(t *testing.T) {
	url := startPostgres(t)

	m, err := db.NewMigrator(url)
	require.NoError(t, err)
	defer m.Close()

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, m.Up())
	v, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	require.NoError(t, m.Up(), "second Up is a no-op")
	require.NoError(t, m.Down())

	v, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestUserRepository(t *testing.T) {
	d := openMigrated(t)
	users := db.NewUserRepository(d)
	ctx := context.Background()

	u := newUser(t, users, "a@x.com")

	got, err := users.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = users.GetByEmail(ctx, "A@x.com")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = users.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	dup := *u
	dup.ID = uuid.New()
	assert.ErrorIs(t, users.Create(ctx, &dup), models.ErrEmailExists)
}

func TestSessionRepository(t *testing.T) {
	d := openMigrated(t)
	users := db.NewUserRepository(d)
	sessions := db.NewSessionRepository(d)
	ctx := context.Background()
	u := newUser(t, users, "a@x.com")

	session := func(token string, ttl time.Duration) *models.Session {
		now := time.Now().UTC()
		return &models.Session{ID: uuid.New(), UserID: u.ID, RefreshToken: token, ExpiresAt: now.Add(ttl), CreatedAt: now}
	}

	first := session("token-1", time.Hour)
	require.NoError(t, sessions.Insert(ctx, first))
	assert.Error(t, sessions.Insert(ctx, session("token-1", time.Hour)), "refresh tokens are unique")

	next := session("token-2", time.Hour)
	require.NoError(t, sessions.Rotate(ctx, first.ID, next))
	assert.ErrorIs(t, sessions.Rotate(ctx, first.ID, session("token-3", time.Hour)), models.ErrSessionNotFound)

	_, err := sessions.FindActiveByToken(ctx, "token-1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	old, err := sessions.FindByToken(ctx, "token-1")
	require.NoError(t, err)
	require.NotNil(t, old.RevokedAt)

	require.NoError(t, sessions.Revoke(ctx, first.ID))
	again, err := sessions.FindByToken(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, old.RevokedAt.Equal(*again.RevokedAt), "revoke keeps the first timestamp")

	require.NoError(t, sessions.Insert(ctx, session("token-4", time.Hour)))
	n, err := sessions.RevokeAllForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = sessions.PurgeExpired(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestSessionRepository_ConcurrentRotate(t *testing.T) {
	d := openMigrated(t)
	users := db.NewUserRepository(d)
	sessions := db.NewSessionRepository(d)
	ctx := context.Background()
	u := newUser(t, users, "a@x.com")

	now := time.Now().UTC()
	old := &models.Session{ID: uuid.New(), UserID: u.ID, RefreshToken: "old", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	require.NoError(t, sessions.Insert(ctx, old))

	const workers = 6
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			next := &models.Session{ID: uuid.New(), UserID: u.ID, RefreshToken: uuid.NewString(), ExpiresAt: now.Add(time.Hour), CreatedAt: now}
			results <- sessions.Rotate(ctx, old.ID, next)
		}()
	}

	wins := 0
	for i := 0; i < workers; i++ {
		if err := <-results; err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, models.ErrSessionNotFound)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestTodoRepository(t *testing.T) {
	d := openMigrated(t)
	users := db.NewUserRepository(d)
	todos := db.NewTodoRepository(d)
	ctx := context.Background()

	alice := newUser(t, users, "alice@x.com")
	bob := newUser(t, users, "bob@x.com")

	base := time.Now().UTC().Truncate(time.Microsecond)
	mk := func(owner uuid.UUID, title string, p models.TodoPriority, offset time.Duration) *models.Todo {
		ts := base.Add(offset)
		todo := &models.Todo{ID: uuid.New(), UserID: owner, Title: title, Status: models.StatusPending, Priority: p, CreatedAt: ts, UpdatedAt: ts}
		require.NoError(t, todos.Create(ctx, todo))
		return todo
	}

	low := mk(alice.ID, "b-low", models.PriorityLow, 0)
	high := mk(alice.ID, "a-high", models.PriorityHigh, time.Second)
	mk(alice.ID, "c-medium", models.PriorityMedium, 2*time.Second)
	foreign := mk(bob.ID, "bob's", models.PriorityHigh, 0)

	_, err := todos.Get(ctx, alice.ID, foreign.ID)
	assert.ErrorIs(t, err, models.ErrTodoNotFound)

	items, total, err := todos.List(ctx, alice.ID, models.TodoFilter{SortBy: "priority", SortDesc: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, high.ID, items[0].ID)
	assert.Equal(t, models.PriorityMedium, items[1].Priority)

	items, _, err = todos.List(ctx, alice.ID, models.TodoFilter{SortBy: "title", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "a-high", items[0].Title)

	completedAt := base.Add(time.Hour)
	low.Status = models.StatusCompleted
	low.CompletedAt = &completedAt
	low.UpdatedAt = completedAt
	require.NoError(t, todos.Update(ctx, low))

	items, total, err = todos.List(ctx, alice.ID, models.TodoFilter{Status: models.StatusCompleted, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NotNil(t, items[0].CompletedAt)
	assert.True(t, completedAt.Equal(*items[0].CompletedAt))

	foreign.UserID = alice.ID
	assert.ErrorIs(t, todos.Update(ctx, foreign), models.ErrTodoNotFound)
	assert.ErrorIs(t, todos.Delete(ctx, alice.ID, foreign.ID), models.ErrTodoNotFound)

	require.NoError(t, todos.Delete(ctx, alice.ID, high.ID))
	_, err = todos.Get(ctx, alice.ID, high.ID)
	assert.ErrorIs(t, err, models.ErrTodoNotFound)
}

func TestRowLevelSecurity(t *testing.T) {
	d := openMigrated(t)
	users := db.NewUserRepository(d)
	todos := db.NewTodoRepository(d)
	ctx := context.Background()

	alice := newUser(t, users, "alice@x.com")
	bob := newUser(t, users, "bob@x.com")
	now := time.Now().UTC()
	for _, owner := range []uuid.UUID{alice.ID, bob.ID} {
		require.NoError(t, todos.Create(ctx, &models.Todo{
			ID: uuid.New(), UserID: owner, Title: "t", Status: models.StatusPending,
			Priority: models.PriorityMedium, CreatedAt: now, UpdatedAt: now,
		}))
	}

	// A role that does not own the table is bound by the policies.
	_, err := d.ExecContext(ctx, `
		CREATE ROLE app_reader NOLOGIN;
		GRANT SELECT ON todos TO app_reader;
	`)
	require.NoError(t, err)

	var visible int
	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SET LOCAL ROLE app_reader`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `SELECT set_current_user_id($1)`, alice.ID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos`).Scan(&visible)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, visible)
}
