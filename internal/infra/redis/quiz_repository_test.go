package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, client := newServer(t)

	store := &countingStore{QuizStore: memory.NewQuizMap(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
	})}
	repo := NewQuizRepository(client, store, time.Minute)

	got, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads())
	assert.True(t, mr.Exists("quiz:quiz-1"), "quiz cached in redis")

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads())
	assert.Equal(t, got.Questions[0].Correct, cached.Questions[0].Correct, "cached quiz keeps the answer key")

	mr.FastForward(2 * time.Minute)
	_, err = repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads(), "reload after ttl")
}

func TestQuizRepositoryMissingQuiz(t *testing.T) {
	_, client := newServer(t)
	repo := NewQuizRepository(client, memory.NewQuizMap(nil), time.Minute)
	_, err := repo.GetQuiz(context.Background(), "nope")
	assert.Equal(t, domain.ErrQuizNotFound, err)
}

func TestQuizRepositorySaveWritesThrough(t *testing.T) {
	mr, client := newServer(t)
	store := memory.NewQuizMap(nil)
	repo := NewQuizRepository(client, store, time.Minute)

	require.NoError(t, repo.SaveQuiz(context.Background(), sampleQuiz()))
	_, err := store.LoadQuiz(context.Background(), "quiz-1")
	assert.NoError(t, err, "quiz in backing store")
	assert.True(t, mr.Exists("quiz:quiz-1"), "cache primed")
}

type countingStore struct {
	memory.QuizStore
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

func newServer(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
