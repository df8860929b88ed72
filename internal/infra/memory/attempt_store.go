package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-room-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository. A single mutex
// makes count-and-insert atomic.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[string]domain.Attempt
	byPair   map[string][]string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
		byPair:   make(map[string][]string),
	}
}

func (s *AttemptStore) CountAttempts(_ context.Context, roomID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byPair[pairKey(roomID, userID)]), nil
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt, maxAttempts int) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(attempt.RoomID, attempt.UserID)
	existing := s.byPair[key]
	if len(existing) >= maxAttempts {
		return domain.Attempt{}, domain.ErrConcurrentLimit
	}
	attempt.AttemptNumber = len(existing) + 1
	attempt.Responses = copyResponses(attempt.Responses)
	s.attempts[attempt.ID] = attempt
	s.byPair[key] = append(existing, attempt.ID)
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) SaveResponse(_ context.Context, attemptID, questionID, selected string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Submitted() {
		return domain.ErrAlreadySubmitted
	}
	if attempt.Responses == nil {
		attempt.Responses = make(map[string]string)
	}
	attempt.Responses[questionID] = selected
	attempt.Status = domain.AttemptInProgress
	s.attempts[attemptID] = attempt
	return nil
}

func (s *AttemptStore) CompleteAttempt(_ context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attempts[attempt.ID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if stored.Submitted() {
		return cloneAttempt(stored), domain.ErrAlreadySubmitted
	}
	stored.Responses = copyResponses(attempt.Responses)
	stored.Score = attempt.Score
	stored.Total = attempt.Total
	stored.Correctness = append([]domain.QuestionResult(nil), attempt.Correctness...)
	stored.SubmittedAt = attempt.SubmittedAt
	stored.Status = domain.AttemptSubmitted
	s.attempts[attempt.ID] = stored
	return cloneAttempt(stored), nil
}

func (s *AttemptStore) ListSubmitted(_ context.Context, roomID string) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.RoomID == roomID && attempt.Submitted() {
			out = append(out, cloneAttempt(attempt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(*out[j].SubmittedAt) })
	return out, nil
}

func pairKey(roomID, userID string) string {
	return roomID + "|" + userID
}

func copyResponses(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneAttempt(a domain.Attempt) domain.Attempt {
	a.Responses = copyResponses(a.Responses)
	if a.Correctness != nil {
		a.Correctness = append([]domain.QuestionResult(nil), a.Correctness...)
	}
	return a
}
