package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/models"
)

type SessionRepository struct {
	db  *DB
	now func() time.Time
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, ex execer, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, refresh_token, expires_at, created_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := ex.ExecContext(ctx, query,
		s.ID, s.UserID, s.RefreshToken, s.ExpiresAt, s.CreatedAt, s.RevokedAt,
	)
	return err
}

func (r *SessionRepository) Insert(ctx context.Context, session *models.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return storeErr("insert session", insertSession(ctx, r.db, session))
}

func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT id, user_id, refresh_token, expires_at, created_at, revoked_at
		FROM sessions
		WHERE refresh_token = $1
	`
	return r.findOne(ctx, "find session", query, token)
}

func (r *SessionRepository) FindActiveByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT id, user_id, refresh_token, expires_at, created_at, revoked_at
		FROM sessions
		WHERE refresh_token = $1 AND revoked_at IS NULL
	`
	return r.findOne(ctx, "find active session", query, token)
}

func (r *SessionRepository) findOne(ctx context.Context, op, query, token string) (*models.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	s := &models.Session{}
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&s.ID, &s.UserID, &s.RefreshToken, &s.ExpiresAt, &s.CreatedAt, &revokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, storeErr(op, err)
	}
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}

	return s, nil
}

func (r *SessionRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, r.now())
	if err != nil {
		return storeErr("revoke session", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storeErr("revoke session", err)
	}
	if rows == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, userID, r.now())
	if err != nil {
		return 0, storeErr("revoke user sessions", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("revoke user sessions", err)
	}
	return n, nil
}

// Rotate revokes oldID and inserts next in one transaction. The revoke only
// matches a still-active row, so of two concurrent rotations of the same
// session exactly one commits.
func (r *SessionRepository) Rotate(ctx context.Context, oldID uuid.UUID, next *models.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET revoked_at = $2
			WHERE id = $1 AND revoked_at IS NULL
		`, oldID, r.now())
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return models.ErrSessionNotFound
		}

		return insertSession(ctx, tx, next)
	})
	if errors.Is(err, models.ErrSessionNotFound) {
		return err
	}
	return storeErr("rotate session", err)
}

func (r *SessionRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR revoked_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, storeErr("purge sessions", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("purge sessions", err)
	}
	return n, nil
}
