package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"quiz-room-service/internal/domain"
)

// RoomRepository stores rooms (in-memory, Postgres).
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	FindByCode(ctx context.Context, code string) (domain.Room, error)
	SaveRoom(ctx context.Context, room domain.Room) error
}

// QuizRepository loads quiz content (from cache/backing store) and inserts new quizzes.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// AttemptRepository persists attempts. CreateAttempt must count and insert atomically
// per (room, user) so that no more than maxAttempts rows ever exist for the pair.
type AttemptRepository interface {
	CountAttempts(ctx context.Context, roomID, userID string) (int, error)
	CreateAttempt(ctx context.Context, attempt domain.Attempt, maxAttempts int) (domain.Attempt, error)
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	SaveResponse(ctx context.Context, attemptID, questionID, selected string) error
	// CompleteAttempt stores the scored attempt unless it is already submitted, in which
	// case it returns the stored attempt together with domain.ErrAlreadySubmitted.
	CompleteAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error)
	ListSubmitted(ctx context.Context, roomID string) ([]domain.Attempt, error)
}

// MembershipRepository remembers who joined a private room with its code.
type MembershipRepository interface {
	MarkJoined(ctx context.Context, roomID, userID string) error
	HasJoined(ctx context.Context, roomID, userID string) (bool, error)
}

// Metrics receives lifecycle outcomes; the prometheus adapter lives in internal/metrics.
type Metrics interface {
	Admission(decision domain.Decision)
	Submission(reason domain.Reason)
}

type nopMetrics struct{}

func (nopMetrics) Admission(domain.Decision) {}
func (nopMetrics) Submission(domain.Reason)  {}

// Repositories groups the storage dependencies of the Service.
type Repositories struct {
	Rooms    RoomRepository
	Quizzes  QuizRepository
	Attempts AttemptRepository
	Members  MembershipRepository
}

// Service contains the room admission and timed attempt use cases.
type Service struct {
	rooms    RoomRepository
	quizzes  QuizRepository
	attempts AttemptRepository
	members  MembershipRepository

	now     func() time.Time
	log     *zap.Logger
	metrics Metrics
	hub     *leaderboardHub

	admissions  *keyedMutex
	submissions *keyedMutex
}

// Option customizes a Service.
type Option func(*Service)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func NewService(repos Repositories, opts ...Option) *Service {
	s := &Service{
		rooms:       repos.Rooms,
		quizzes:     repos.Quizzes,
		attempts:    repos.Attempts,
		members:     repos.Members,
		now:         time.Now,
		log:         zap.NewNop(),
		metrics:     nopMetrics{},
		admissions:  newKeyedMutex(),
		submissions: newKeyedMutex(),
		hub:         newLeaderboardHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now exposes the server clock so transport can stamp request receipt.
func (s *Service) Now() time.Time {
	return s.now()
}
