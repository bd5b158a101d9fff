package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/models"
)

// UserStore persists user accounts. Lookups of missing users return
// models.ErrUserNotFound; a duplicate email on Create returns
// models.ErrEmailExists.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// SessionStore persists refresh token sessions. Lookups of missing sessions
// return models.ErrSessionNotFound.
type SessionStore interface {
	Insert(ctx context.Context, session *models.Session) error
	// FindByToken returns the session regardless of its revocation state.
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	// FindActiveByToken ignores revoked sessions.
	FindActiveByToken(ctx context.Context, token string) (*models.Session, error)
	// Revoke marks a session revoked. Revoking twice keeps the first timestamp.
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	// Rotate revokes the still-active session oldID and inserts next as one
	// unit of work. If oldID is no longer active nothing is written and
	// models.ErrSessionNotFound is returned.
	Rotate(ctx context.Context, oldID uuid.UUID, next *models.Session) error
	// PurgeExpired deletes sessions that expired or were revoked before the
	// cutoff.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
