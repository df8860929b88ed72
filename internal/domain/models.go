package domain

import "time"

// Visibility controls how a room is discovered.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Role is the coarse permission level carried in access tokens.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

// Identity is the authenticated caller. It is passed explicitly into service calls.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// Question models an MCQ question with exactly one correct option string.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct string   `json:"correct,omitempty"`
}

// Quiz is an ordered collection of questions. Quizzes are insert-only.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	OwnerID   string     `json:"ownerId,omitempty"`
	Questions []Question `json:"questions"`
}

// Public strips the correct options so the quiz can be shown to students.
func (q Quiz) Public() Quiz {
	out := Quiz{ID: q.ID, Title: q.Title, Questions: make([]Question, len(q.Questions))}
	for i, question := range q.Questions {
		question.Correct = ""
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}

// Room is a scheduled, capacity- and time-bounded instance of a quiz.
type Room struct {
	ID               string     `json:"id"`
	QuizID           string     `json:"quizId"`
	OwnerID          string     `json:"ownerId"`
	Title            string     `json:"title"`
	Active           bool       `json:"active"`
	Visibility       Visibility `json:"visibility"`
	TimeLimitMinutes int        `json:"timeLimitMinutes"`
	MaxAttempts      int        `json:"maxAttempts"`
	StartsAt         *time.Time `json:"startsAt,omitempty"`
	EndsAt           *time.Time `json:"endsAt,omitempty"`
	RoomCode         string     `json:"roomCode,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// TimeLimit returns the attempt duration.
func (r Room) TimeLimit() time.Duration {
	return time.Duration(r.TimeLimitMinutes) * time.Minute
}

// Validate checks the structural rules a room must satisfy.
func (r Room) Validate() error {
	if r.QuizID == "" || r.TimeLimitMinutes <= 0 || r.MaxAttempts < 1 {
		return ErrInvalidRoom
	}
	if r.Visibility != VisibilityPublic && r.Visibility != VisibilityPrivate {
		return ErrInvalidRoom
	}
	if r.StartsAt != nil && r.EndsAt != nil && r.EndsAt.Before(*r.StartsAt) {
		return ErrInvalidRoom
	}
	return nil
}

// AttemptStatus enumerates the attempt lifecycle.
type AttemptStatus string

const (
	AttemptCreated    AttemptStatus = "CREATED"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
)

// QuestionResult reports whether one question was answered correctly.
type QuestionResult struct {
	QuestionID string `json:"questionId"`
	Selected   string `json:"selected"`
	Correct    bool   `json:"correct"`
}

// Attempt is one user's timed pass through a room's quiz.
type Attempt struct {
	ID            string `json:"id"`
	RoomID        string `json:"roomId"`
	QuizID        string `json:"quizId"`
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	AttemptNumber int    `json:"attemptNumber"`
	// TimeLimitMinutes is the room's limit at admission; later room edits do not touch it.
	TimeLimitMinutes int               `json:"timeLimitMinutes"`
	Status           AttemptStatus     `json:"status"`
	CreatedAt        time.Time         `json:"createdAt"`
	Deadline         time.Time         `json:"deadline"`
	Responses        map[string]string `json:"responses"`
	Score            *int              `json:"score,omitempty"`
	Total            int               `json:"total"`
	Correctness      []QuestionResult  `json:"correctness,omitempty"`
	SubmittedAt      *time.Time        `json:"submittedAt,omitempty"`
}

// Submitted reports whether the attempt reached its terminal state.
func (a Attempt) Submitted() bool {
	return a.Status == AttemptSubmitted
}

// Result projects a submitted attempt into the scoring payload.
func (a Attempt) Result() SubmitResult {
	res := SubmitResult{
		AttemptID: a.ID,
		Total:     a.Total,
		Results:   a.Correctness,
	}
	if a.Score != nil {
		res.Score = *a.Score
	}
	if a.SubmittedAt != nil {
		res.SubmittedAt = *a.SubmittedAt
	}
	return res
}

// Answer is a single client-provided selection.
type Answer struct {
	QuestionID string `json:"questionId"`
	Selected   string `json:"selected"`
}

// SubmitResult is returned by a successful (or replayed) submission.
type SubmitResult struct {
	AttemptID        string           `json:"attemptId"`
	Score            int              `json:"score"`
	Total            int              `json:"total"`
	Results          []QuestionResult `json:"results"`
	SubmittedAt      time.Time        `json:"submittedAt"`
	AlreadySubmitted bool             `json:"alreadySubmitted,omitempty"`
}

// CredentialPair is the access/refresh token pair issued to a client.
type CredentialPair struct {
	AccessToken     string    `json:"accessToken"`
	RefreshToken    string    `json:"refreshToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity converts the account into the identity carried by tokens.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Name: u.Username, Role: u.Role}
}

// LeaderboardEntry is a snapshot-friendly view of a participant's best attempt.
type LeaderboardEntry struct {
	UserID        string    `json:"userId"`
	DisplayName   string    `json:"displayName"`
	Score         int       `json:"score"`
	Total         int       `json:"total"`
	AttemptNumber int       `json:"attemptNumber"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Leaderboard captures the ordered scoreboard for a room.
type Leaderboard struct {
	RoomID    string             `json:"roomId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
