package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskvault/backend/internal/models"
)

// MemoryUserStore is an in-process UserStore.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *MemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return models.ErrEmailExists
	}
	s.byID[user.ID] = *user
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *MemoryUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	u := s.byID[id]
	return &u, nil
}

func (s *MemoryUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

// Delete removes a user and cascades to their sessions when sessions is
// non-nil.
func (s *MemoryUserStore) Delete(id uuid.UUID, sessions *MemorySessionStore) {
	s.mu.Lock()
	if u, ok := s.byID[id]; ok {
		delete(s.byEmail, u.Email)
		delete(s.byID, id)
	}
	s.mu.Unlock()

	if sessions != nil {
		sessions.deleteForUser(id)
	}
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.Session
	byToken map[string]uuid.UUID
	now     func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		byID:    make(map[uuid.UUID]*models.Session),
		byToken: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (s *MemorySessionStore) Insert(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(session)
}

func (s *MemorySessionStore) insertLocked(session *models.Session) error {
	if _, ok := s.byToken[session.RefreshToken]; ok {
		return fmt.Errorf("insert session: duplicate refresh token")
	}
	if _, ok := s.byID[session.ID]; ok {
		return fmt.Errorf("insert session: duplicate id %s", session.ID)
	}
	cp := *session
	s.byID[cp.ID] = &cp
	s.byToken[cp.RefreshToken] = cp.ID
	return nil
}

func (s *MemorySessionStore) FindByToken(_ context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return copySession(s.byID[id]), nil
}

func (s *MemorySessionStore) FindActiveByToken(ctx context.Context, token string) (*models.Session, error) {
	sess, err := s.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Revoked() {
		return nil, models.ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemorySessionStore) Revoke(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	if sess.RevokedAt == nil {
		now := s.now()
		sess.RevokedAt = &now
	}
	return nil
}

func (s *MemorySessionStore) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for _, sess := range s.byID {
		if sess.UserID == userID && sess.RevokedAt == nil {
			sess.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) Rotate(_ context.Context, oldID uuid.UUID, next *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[oldID]
	if !ok || old.RevokedAt != nil {
		return models.ErrSessionNotFound
	}
	if err := s.insertLocked(next); err != nil {
		return err
	}
	now := s.now()
	old.RevokedAt = &now
	return nil
}

func (s *MemorySessionStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.byID {
		if sess.ExpiresAt.Before(before) || (sess.RevokedAt != nil && sess.RevokedAt.Before(before)) {
			delete(s.byToken, sess.RefreshToken)
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) deleteForUser(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.byID {
		if sess.UserID == userID {
			delete(s.byToken, sess.RefreshToken)
			delete(s.byID, id)
		}
	}
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
