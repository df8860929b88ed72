package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"quiz-room-service/internal/domain"
)

// Admit decides whether a caller with attemptsAlreadyMade prior attempts may start a new
// attempt in room at instant now. It is pure; the first matching rule wins.
func Admit(room domain.Room, now time.Time, attemptsAlreadyMade int) domain.Decision {
	switch {
	case !room.Active:
		return domain.Deny(domain.ReasonLocked)
	case room.StartsAt != nil && now.Before(*room.StartsAt):
		return domain.Deny(domain.ReasonNotStarted)
	case room.EndsAt != nil && now.After(*room.EndsAt):
		return domain.Deny(domain.ReasonEnded)
	case attemptsAlreadyMade >= room.MaxAttempts:
		return domain.Deny(domain.ReasonAttemptsExhausted)
	}
	return domain.Allow
}

// Start runs the admission gate for caller and, on ADMIT, creates the attempt. Counting and
// creation happen under a per (user, room) lock and the repository insert re-checks the
// ceiling, so concurrent starts never exceed the room's maxAttempts.
func (s *Service) Start(ctx context.Context, caller domain.Identity, roomID string) (domain.Attempt, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := s.checkRoomAccess(ctx, caller, room); err != nil {
		return domain.Attempt{}, err
	}
	if _, err := s.quizzes.GetQuiz(ctx, room.QuizID); err != nil {
		return domain.Attempt{}, err
	}

	unlock := s.admissions.Lock(caller.UserID + "|" + room.ID)
	defer unlock()

	used, err := s.attempts.CountAttempts(ctx, room.ID, caller.UserID)
	if err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	decision := Admit(room, now, used)
	s.metrics.Admission(decision)
	if !decision.Admitted {
		s.log.Info("admission denied",
			zap.String("room", room.ID),
			zap.String("user", caller.UserID),
			zap.String("reason", string(decision.Reason)),
			zap.Int("attempts_used", used),
		)
		return domain.Attempt{}, decision.Err()
	}

	attempt, err := s.attempts.CreateAttempt(ctx, domain.Attempt{
		ID:               uuid.NewString(),
		RoomID:           room.ID,
		QuizID:           room.QuizID,
		UserID:           caller.UserID,
		DisplayName:      caller.Name,
		TimeLimitMinutes: room.TimeLimitMinutes,
		Status:           domain.AttemptCreated,
		CreatedAt:        now,
		Deadline:         now.Add(room.TimeLimit()),
		Responses:        map[string]string{},
	}, room.MaxAttempts)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentLimit) {
			s.metrics.Admission(domain.Deny(domain.ReasonConcurrentLimit))
		}
		return domain.Attempt{}, err
	}

	s.log.Info("attempt created",
		zap.String("attempt", attempt.ID),
		zap.String("room", room.ID),
		zap.String("user", caller.UserID),
		zap.Int("number", attempt.AttemptNumber),
		zap.Time("deadline", attempt.Deadline),
	)
	return attempt, nil
}

// checkRoomAccess enforces the private-room join requirement. Owners always pass.
func (s *Service) checkRoomAccess(ctx context.Context, caller domain.Identity, room domain.Room) error {
	if room.Visibility != domain.VisibilityPrivate || room.OwnerID == caller.UserID {
		return nil
	}
	joined, err := s.members.HasJoined(ctx, room.ID, caller.UserID)
	if err != nil {
		return err
	}
	if !joined {
		return domain.ErrNotJoined
	}
	return nil
}
