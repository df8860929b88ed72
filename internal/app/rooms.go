package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"quiz-room-service/internal/domain"
)

// RoomView is what the gate UI renders before a student presses start.
type RoomView struct {
	Room         domain.Room     `json:"room"`
	Quiz         domain.Quiz     `json:"quiz"`
	AttemptsUsed int             `json:"attemptsUsed"`
	Admission    domain.Decision `json:"admission"`
	Now          time.Time       `json:"serverTime"`
}

// RoomInput is the instructor payload for creating a room.
type RoomInput struct {
	QuizID           string            `json:"quizId"`
	Title            string            `json:"title"`
	Active           *bool             `json:"active"`
	Visibility       domain.Visibility `json:"visibility"`
	TimeLimitMinutes int               `json:"timeLimitMinutes"`
	MaxAttempts      int               `json:"maxAttempts"`
	StartsAt         *time.Time        `json:"startsAt"`
	EndsAt           *time.Time        `json:"endsAt"`
}

// ScheduleInput edits the schedule and limits of an existing room. Nil fields are kept;
// ClearStartsAt/ClearEndsAt remove a bound.
type ScheduleInput struct {
	StartsAt         *time.Time `json:"startsAt"`
	EndsAt           *time.Time `json:"endsAt"`
	ClearStartsAt    bool       `json:"clearStartsAt"`
	ClearEndsAt      bool       `json:"clearEndsAt"`
	TimeLimitMinutes *int       `json:"timeLimitMinutes"`
	MaxAttempts      *int       `json:"maxAttempts"`
}

// GetRoom returns room and quiz metadata plus a preview of the admission decision computed
// with the server clock. Private rooms require a prior join (or ownership).
func (s *Service) GetRoom(ctx context.Context, caller domain.Identity, roomID string) (RoomView, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return RoomView{}, err
	}
	if err := s.checkRoomAccess(ctx, caller, room); err != nil {
		return RoomView{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return RoomView{}, err
	}
	used, err := s.attempts.CountAttempts(ctx, room.ID, caller.UserID)
	if err != nil {
		return RoomView{}, err
	}
	now := s.now()
	if room.OwnerID != caller.UserID {
		room.RoomCode = ""
	}
	return RoomView{
		Room:         room,
		Quiz:         quiz.Public(),
		AttemptsUsed: used,
		Admission:    Admit(room, now, used),
		Now:          now,
	}, nil
}

// JoinByCode validates a private room code and remembers the caller as joined.
func (s *Service) JoinByCode(ctx context.Context, caller domain.Identity, code string) (string, error) {
	code = normalizeCode(code)
	if code == "" {
		return "", domain.ErrInvalidPayload
	}
	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return "", domain.ErrInvalidCode
		}
		return "", err
	}
	if err := s.members.MarkJoined(ctx, room.ID, caller.UserID); err != nil {
		return "", err
	}
	s.log.Debug("joined private room", zap.String("room", room.ID), zap.String("user", caller.UserID))
	return room.ID, nil
}

// CreateQuiz stores a new quiz. Quizzes are never updated in place, so rooms and scored
// attempts keep referring to the exact questions they were built from.
func (s *Service) CreateQuiz(ctx context.Context, caller domain.Identity, quiz domain.Quiz) (domain.Quiz, error) {
	if caller.Role != domain.RoleInstructor {
		return domain.Quiz{}, domain.ErrForbidden
	}
	if err := validateQuiz(&quiz); err != nil {
		return domain.Quiz{}, err
	}
	quiz.ID = uuid.NewString()
	quiz.OwnerID = caller.UserID
	if err := s.quizzes.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// CreateRoom opens a room on an existing quiz. Private rooms get a generated join code.
func (s *Service) CreateRoom(ctx context.Context, caller domain.Identity, in RoomInput) (domain.Room, error) {
	if caller.Role != domain.RoleInstructor {
		return domain.Room{}, domain.ErrForbidden
	}
	if in.Visibility == "" {
		in.Visibility = domain.VisibilityPublic
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	room := domain.Room{
		ID:               uuid.NewString(),
		QuizID:           in.QuizID,
		OwnerID:          caller.UserID,
		Title:            in.Title,
		Active:           active,
		Visibility:       in.Visibility,
		TimeLimitMinutes: in.TimeLimitMinutes,
		MaxAttempts:      in.MaxAttempts,
		StartsAt:         in.StartsAt,
		EndsAt:           in.EndsAt,
		CreatedAt:        s.now(),
	}
	if err := room.Validate(); err != nil {
		return domain.Room{}, err
	}
	if _, err := s.quizzes.GetQuiz(ctx, room.QuizID); err != nil {
		return domain.Room{}, err
	}
	if room.Visibility == domain.VisibilityPrivate {
		room.RoomCode = newRoomCode()
	}
	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	s.log.Info("room created",
		zap.String("room", room.ID),
		zap.String("quiz", room.QuizID),
		zap.String("owner", caller.UserID),
		zap.String("visibility", string(room.Visibility)),
	)
	return room, nil
}

// SetActive flips the instructor lock flag. It takes effect for the next admission.
func (s *Service) SetActive(ctx context.Context, caller domain.Identity, roomID string, active bool) (domain.Room, error) {
	return s.updateOwnedRoom(ctx, caller, roomID, func(room *domain.Room) error {
		room.Active = active
		return nil
	})
}

// Reschedule edits the admission window and limits. Deadlines of existing attempts are
// stored on the attempts and are not affected.
func (s *Service) Reschedule(ctx context.Context, caller domain.Identity, roomID string, in ScheduleInput) (domain.Room, error) {
	return s.updateOwnedRoom(ctx, caller, roomID, func(room *domain.Room) error {
		if in.ClearStartsAt {
			room.StartsAt = nil
		} else if in.StartsAt != nil {
			room.StartsAt = in.StartsAt
		}
		if in.ClearEndsAt {
			room.EndsAt = nil
		} else if in.EndsAt != nil {
			room.EndsAt = in.EndsAt
		}
		if in.TimeLimitMinutes != nil {
			room.TimeLimitMinutes = *in.TimeLimitMinutes
		}
		if in.MaxAttempts != nil {
			room.MaxAttempts = *in.MaxAttempts
		}
		return room.Validate()
	})
}

func (s *Service) updateOwnedRoom(ctx context.Context, caller domain.Identity, roomID string, mutate func(*domain.Room) error) (domain.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.OwnerID != caller.UserID {
		return domain.Room{}, domain.ErrForbidden
	}
	if err := mutate(&room); err != nil {
		return domain.Room{}, err
	}
	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	s.log.Info("room updated",
		zap.String("room", room.ID),
		zap.Bool("active", room.Active),
		zap.Int("max_attempts", room.MaxAttempts),
	)
	return room, nil
}

// validateQuiz requires at least one question, two options per question and a correct
// option that is one of the options. Missing question IDs are generated.
func validateQuiz(quiz *domain.Quiz) error {
	if len(quiz.Questions) == 0 {
		return domain.ErrInvalidQuiz
	}
	seen := make(map[string]struct{}, len(quiz.Questions))
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if _, dup := seen[q.ID]; dup {
			return domain.ErrInvalidQuiz
		}
		seen[q.ID] = struct{}{}
		if q.Prompt == "" || len(q.Options) < 2 || q.Correct == "" {
			return domain.ErrInvalidQuiz
		}
		found := false
		for _, opt := range q.Options {
			if opt == q.Correct {
				found = true
				break
			}
		}
		if !found {
			return domain.ErrInvalidQuiz
		}
	}
	return nil
}

func newRoomCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:8])
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
