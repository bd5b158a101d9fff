package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/models"
)

// TodoRepository runs every statement inside a transaction scoped to the
// owning user, and filters by user_id as well.
type TodoRepository struct {
	db *DB
}

func NewTodoRepository(db *DB) *TodoRepository {
	return &TodoRepository{db: db}
}

const todoColumns = `id, user_id, title, description, status, priority, due_date, completed_at, created_at, updated_at`

var todoSortColumns = map[string]string{
	"created_at": "created_at",
	"due_date":   "due_date",
	"title":      "title",
	"priority":   "CASE priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 END",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (*models.Todo, error) {
	t := &models.Todo{}
	var (
		description          sql.NullString
		dueDate, completedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &description, &t.Status, &t.Priority,
		&dueDate, &completedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

func (r *TodoRepository) scoped(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := withUserScope(ctx, tx, userID); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func (r *TodoRepository) Create(ctx context.Context, todo *models.Todo) error {
	err := r.scoped(ctx, todo.UserID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO todos (`+todoColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			todo.ID, todo.UserID, todo.Title, todo.Description, todo.Status, todo.Priority,
			todo.DueDate, todo.CompletedAt, todo.CreatedAt, todo.UpdatedAt,
		)
		return err
	})
	return storeErr("insert todo", err)
}

func (r *TodoRepository) Get(ctx context.Context, userID, id uuid.UUID) (*models.Todo, error) {
	var todo *models.Todo
	err := r.scoped(ctx, userID, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+todoColumns+`
			FROM todos
			WHERE id = $1 AND user_id = $2
		`, id, userID)
		var err error
		todo, err = scanTodo(row)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTodoNotFound
		}
		return nil, storeErr("get todo", err)
	}
	return todo, nil
}

// List returns one page of the user's todos and the total number matching
// the filter.
func (r *TodoRepository) List(ctx context.Context, userID uuid.UUID, f models.TodoFilter) ([]models.Todo, int, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	sortExpr, ok := todoSortColumns[f.SortBy]
	if !ok {
		sortExpr = todoSortColumns["created_at"]
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	order := fmt.Sprintf("%s %s NULLS LAST, id ASC", sortExpr, dir)

	var (
		todos []models.Todo
		total int
	)
	err := r.scoped(ctx, userID, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos WHERE `+cond, args...).Scan(&total); err != nil {
			return err
		}

		pageArgs := append(append([]any{}, args...), f.Limit, f.Offset)
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(
			`SELECT %s FROM todos WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
			todoColumns, cond, order, len(args)+1, len(args)+2,
		), pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTodo(rows)
			if err != nil {
				return err
			}
			todos = append(todos, *t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, storeErr("list todos", err)
	}
	return todos, total, nil
}

// Update writes every mutable column of todo.
func (r *TodoRepository) Update(ctx context.Context, todo *models.Todo) error {
	var rows int64
	err := r.scoped(ctx, todo.UserID, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE todos
			SET title = $3, description = $4, status = $5, priority = $6,
				due_date = $7, completed_at = $8, updated_at = $9
			WHERE id = $1 AND user_id = $2
		`,
			todo.ID, todo.UserID, todo.Title, todo.Description, todo.Status, todo.Priority,
			todo.DueDate, todo.CompletedAt, todo.UpdatedAt,
		)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return storeErr("update todo", err)
	}
	if rows == 0 {
		return models.ErrTodoNotFound
	}
	return nil
}

func (r *TodoRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	var rows int64
	err := r.scoped(ctx, userID, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return storeErr("delete todo", err)
	}
	if rows == 0 {
		return models.ErrTodoNotFound
	}
	return nil
}
