package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
)

// UserStore keeps accounts in memory. Usernames are matched case-insensitively.
type UserStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	byUsername map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:      make(map[string]domain.User),
		byUsername: make(map[string]string),
	}
}

func (s *UserStore) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(user.Username)
	if _, taken := s.byUsername[key]; taken {
		return domain.ErrUsernameTaken
	}
	s.users[user.ID] = user
	s.byUsername[key] = user.ID
	return nil
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *UserStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// RefreshStore keeps refresh sessions in memory and evicts expired ones lazily.
type RefreshStore struct {
	mu       sync.Mutex
	clock    func() time.Time
	sessions map[string]auth.RefreshSession
}

func NewRefreshStore() *RefreshStore {
	return &RefreshStore{clock: time.Now, sessions: make(map[string]auth.RefreshSession)}
}

func (s *RefreshStore) Put(_ context.Context, session auth.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return nil
}

func (s *RefreshStore) Get(_ context.Context, token string) (auth.RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return auth.RefreshSession{}, domain.ErrInvalidRefreshToken
	}
	if !s.clock().Before(session.ExpiresAt) {
		delete(s.sessions, token)
		return auth.RefreshSession{}, domain.ErrInvalidRefreshToken
	}
	return session, nil
}

func (s *RefreshStore) MarkRotated(_ context.Context, token string, successor domain.CredentialPair, at time.Time) (auth.RefreshSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return auth.RefreshSession{}, false, domain.ErrInvalidRefreshToken
	}
	if session.RotatedAt != nil {
		return session, false, nil
	}
	session.RotatedAt = &at
	session.Successor = &successor
	s.sessions[token] = session
	return session, true, nil
}

func (s *RefreshStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
