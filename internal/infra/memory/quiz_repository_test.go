package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-room-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	store := &countingStore{QuizStore: NewQuizMap(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
	})}
	repo := NewQuizRepository(store, time.Minute)

	_, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads())

	_, err = repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads(), "second read is a cache hit")
}

func TestQuizRepositoryReloadsAfterTTL(t *testing.T) {
	store := &countingStore{QuizStore: NewQuizMap(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
	})}
	repo := NewQuizRepository(store, time.Minute)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads(), "reload after ttl")
}

func TestQuizRepositorySavePrimesCache(t *testing.T) {
	store := &countingStore{QuizStore: NewQuizMap(nil)}
	repo := NewQuizRepository(store, time.Minute)

	quiz := sampleQuiz()
	quiz.ID = "quiz-new"
	require.NoError(t, repo.SaveQuiz(context.Background(), quiz))

	got, err := repo.GetQuiz(context.Background(), "quiz-new")
	require.NoError(t, err)
	assert.Equal(t, quiz.Title, got.Title)
	assert.Zero(t, store.loads())
}

func TestQuizRepositoryMissing(t *testing.T) {
	repo := NewQuizRepository(NewQuizMap(nil), time.Minute)
	_, err := repo.GetQuiz(context.Background(), "nope")
	assert.Equal(t, domain.ErrQuizNotFound, err)
}

type countingStore struct {
	QuizStore
	mu    sync.Mutex
	calls int
}

func (s *countingStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.QuizStore.LoadQuiz(ctx, quizID)
}

func (s *countingStore) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:      "q1",
				Prompt:  "What is 2 + 2?",
				Options: []string{"3", "4"},
				Correct: "4",
			},
		},
	}
}
