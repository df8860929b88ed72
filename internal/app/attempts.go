package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"quiz-room-service/internal/domain"
)

// AttemptView bundles an attempt with the room and student-safe quiz it is bound to. Clients
// derive the countdown from Attempt.CreatedAt and TimeLimitMinutes (or Deadline). Room
// carries the limit the attempt was admitted with, not the room's current one.
type AttemptView struct {
	Attempt domain.Attempt `json:"attempt"`
	Room    domain.Room    `json:"room"`
	Quiz    domain.Quiz    `json:"quiz"`
	Now     time.Time      `json:"serverTime"`
}

// GetAttempt returns the attempt for its owner or the room's instructor.
func (s *Service) GetAttempt(ctx context.Context, caller domain.Identity, attemptID string) (AttemptView, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	room, err := s.rooms.GetRoom(ctx, attempt.RoomID)
	if err != nil {
		return AttemptView{}, err
	}
	if attempt.UserID != caller.UserID && room.OwnerID != caller.UserID {
		return AttemptView{}, domain.ErrForbidden
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptView{}, err
	}
	if room.OwnerID != caller.UserID {
		room.RoomCode = ""
	}
	room.TimeLimitMinutes = attempt.TimeLimitMinutes
	return AttemptView{Attempt: attempt, Room: room, Quiz: quiz.Public(), Now: s.now()}, nil
}

// RecordAnswer stores the latest selection for one question while the attempt is open.
func (s *Service) RecordAnswer(ctx context.Context, caller domain.Identity, attemptID string, answer domain.Answer) error {
	unlock := s.submissions.Lock(attemptID)
	defer unlock()

	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.UserID != caller.UserID {
		return domain.ErrForbidden
	}
	if attempt.Submitted() {
		return domain.ErrAlreadySubmitted
	}
	if !s.now().Before(attempt.Deadline) {
		return domain.ErrLate
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return err
	}
	if !hasQuestion(quiz, answer.QuestionID) {
		return domain.ErrQuestionNotFound
	}
	return s.attempts.SaveResponse(ctx, attemptID, answer.QuestionID, answer.Selected)
}

// Submit performs the single transition to SUBMITTED. receivedAt must be the server's
// receipt time of the request; a replayed submit returns the stored result untouched.
func (s *Service) Submit(ctx context.Context, caller domain.Identity, attemptID string, answers []domain.Answer, receivedAt time.Time) (domain.SubmitResult, error) {
	unlock := s.submissions.Lock(attemptID)
	defer unlock()

	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if attempt.UserID != caller.UserID {
		return domain.SubmitResult{}, domain.ErrForbidden
	}
	if attempt.Submitted() {
		s.metrics.Submission(domain.ReasonAlreadySubmitted)
		return replayed(attempt), nil
	}
	if receivedAt.After(attempt.Deadline) {
		s.metrics.Submission(domain.ReasonLate)
		s.log.Info("late submission rejected",
			zap.String("attempt", attempt.ID),
			zap.Time("received_at", receivedAt),
			zap.Time("deadline", attempt.Deadline),
		)
		return domain.SubmitResult{}, domain.ErrLate
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	responses, err := mergeResponses(quiz, attempt.Responses, answers)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	score, results := scoreResponses(quiz, responses)
	submittedAt := receivedAt
	attempt.Responses = responses
	attempt.Score = &score
	attempt.Total = len(quiz.Questions)
	attempt.Correctness = results
	attempt.SubmittedAt = &submittedAt
	attempt.Status = domain.AttemptSubmitted

	// The receipt is already recorded; a client abort must not roll the submission back.
	stored, err := s.attempts.CompleteAttempt(context.WithoutCancel(ctx), attempt)
	if errors.Is(err, domain.ErrAlreadySubmitted) {
		s.metrics.Submission(domain.ReasonAlreadySubmitted)
		return replayed(stored), nil
	}
	if err != nil {
		return domain.SubmitResult{}, err
	}

	s.metrics.Submission("")
	s.log.Info("attempt submitted",
		zap.String("attempt", stored.ID),
		zap.String("room", stored.RoomID),
		zap.Int("score", score),
		zap.Int("total", stored.Total),
	)
	s.publishLeaderboard(context.WithoutCancel(ctx), stored.RoomID)
	return stored.Result(), nil
}

func replayed(attempt domain.Attempt) domain.SubmitResult {
	res := attempt.Result()
	res.AlreadySubmitted = true
	return res
}

// mergeResponses overlays the final answers on the recorded ones; the last write per
// question wins. Unknown question IDs are rejected.
func mergeResponses(quiz domain.Quiz, recorded map[string]string, final []domain.Answer) (map[string]string, error) {
	merged := make(map[string]string, len(quiz.Questions))
	for questionID, selected := range recorded {
		merged[questionID] = selected
	}
	for _, answer := range final {
		if !hasQuestion(quiz, answer.QuestionID) {
			return nil, domain.ErrQuestionNotFound
		}
		merged[answer.QuestionID] = answer.Selected
	}
	return merged, nil
}

// scoreResponses applies exact, case-sensitive matching; unanswered questions are wrong.
func scoreResponses(quiz domain.Quiz, responses map[string]string) (int, []domain.QuestionResult) {
	score := 0
	results := make([]domain.QuestionResult, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		selected, answered := responses[question.ID]
		correct := answered && selected == question.Correct
		if correct {
			score++
		}
		results = append(results, domain.QuestionResult{
			QuestionID: question.ID,
			Selected:   selected,
			Correct:    correct,
		})
	}
	return score, results
}

func hasQuestion(quiz domain.Quiz, questionID string) bool {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			return true
		}
	}
	return false
}
