package client

import (
	"sync"

	"quiz-room-service/internal/domain"
)

// CredentialStore holds the signed-in credential pair for one client session.
// Replacement is atomic; readers always see a whole pair.
type CredentialStore struct {
	mu   sync.RWMutex
	pair *domain.CredentialPair
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Get returns the current pair and whether the session is signed in.
func (s *CredentialStore) Get() (domain.CredentialPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil {
		return domain.CredentialPair{}, false
	}
	return *s.pair, true
}

func (s *CredentialStore) Set(pair domain.CredentialPair) {
	s.mu.Lock()
	s.pair = &pair
	s.mu.Unlock()
}

// Replace installs fresh only while the stored refresh token is still expected, so a
// refresh that finishes after a sign-out cannot resurrect the session.
func (s *CredentialStore) Replace(expected string, fresh domain.CredentialPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair == nil || s.pair.RefreshToken != expected {
		return false
	}
	s.pair = &fresh
	return true
}

// ClearIf signs out only while the stored refresh token is still expected.
func (s *CredentialStore) ClearIf(expected string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair == nil || s.pair.RefreshToken != expected {
		return false
	}
	s.pair = nil
	return true
}

func (s *CredentialStore) Clear() {
	s.mu.Lock()
	s.pair = nil
	s.mu.Unlock()
}
