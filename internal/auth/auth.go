// Package auth implements registration, login, refresh token rotation,
// logout and bearer token resolution.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/models"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned when a verified token names a user that
	// no longer exists.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError lists rejected request fields.
type ValidationError struct {
	Fields map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// UserInfo is the public profile of a user.
type UserInfo struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUserInfo(u *models.User) *UserInfo {
	return &UserInfo{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

type Service struct {
	users      UserStore
	sessions   SessionStore
	hasher     PasswordHasher
	tokens     *TokenCodec
	accessTTL  time.Duration
	refreshTTL time.Duration
	// dummyHash is verified against when the email is unknown so that both
	// login failure paths cost one hash comparison.
	dummyHash string
	now       func() time.Time
}

func NewService(users UserStore, sessions SessionStore, hasher PasswordHasher, tokens *TokenCodec, accessTTL, refreshTTL time.Duration) (*Service, error) {
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	dummy, err := hasher.Hash("dummy-password-for-timing-equalization")
	if err != nil {
		return nil, fmt.Errorf("auth: compute dummy hash: %w", err)
	}
	return &Service{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// Register creates an account. The password policy is enforced here so a
// weak password is never hashed or stored.
func (s *Service) Register(ctx context.Context, email, password string) (*UserInfo, error) {
	if fields := ValidateCredentials(email, password); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return NewUserInfo(user), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	pair, session, err := s.issue(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Insert(ctx, session); err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// accepted only if its signature and expiry verify and it still has an
// active, unexpired session. The old session is revoked in the same unit of
// work that stores the new one, so a rotated token never works twice.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	subject, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.sessions.FindActiveByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !session.Valid(s.now()) || session.UserID != subject {
		return nil, ErrInvalidToken
	}

	if _, err := s.users.GetByID(ctx, session.UserID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	pair, next, err := s.issue(session.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Rotate(ctx, session.ID, next); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return pair, nil
}

// Logout revokes every active session of the user and returns how many
// were revoked. Outstanding access tokens stay valid until they expire.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// ResolveCurrentUser returns the user named by a valid access token.
func (s *Service) ResolveCurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	userID, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

// PurgeExpiredSessions deletes sessions that expired or were revoked before
// the cutoff.
func (s *Service) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return s.sessions.PurgeExpired(ctx, before)
}

func (s *Service) issue(userID uuid.UUID) (*TokenPair, *models.Session, error) {
	access, _, err := s.tokens.IssueAccess(userID, s.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(userID, s.refreshTTL)
	if err != nil {
		return nil, nil, err
	}

	session := &models.Session{
		ID:           uuid.New(),
		UserID:       userID,
		RefreshToken: refresh,
		ExpiresAt:    refreshExp.UTC(),
		CreatedAt:    s.now().UTC(),
	}
	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}
	return pair, session, nil
}
