package domain

import "errors"

// Reason is the machine-readable code returned to callers alongside every failure.
type Reason string

const (
	ReasonLocked             Reason = "LOCKED"
	ReasonNotStarted         Reason = "NOT_STARTED"
	ReasonEnded              Reason = "ENDED"
	ReasonAttemptsExhausted  Reason = "ATTEMPTS_EXHAUSTED"
	ReasonInvalidCode        Reason = "INVALID_CODE"
	ReasonNotJoined          Reason = "NOT_JOINED"
	ReasonConcurrentLimit    Reason = "CONCURRENT_LIMIT"
	ReasonLate               Reason = "LATE"
	ReasonAlreadySubmitted   Reason = "ALREADY_SUBMITTED"
	ReasonRoomNotFound       Reason = "ROOM_NOT_FOUND"
	ReasonAttemptNotFound    Reason = "ATTEMPT_NOT_FOUND"
	ReasonQuizNotFound       Reason = "QUIZ_NOT_FOUND"
	ReasonQuestionNotFound   Reason = "QUESTION_NOT_FOUND"
	ReasonInvalidRoom        Reason = "INVALID_ROOM"
	ReasonInvalidQuiz        Reason = "INVALID_QUIZ"
	ReasonInvalidPayload     Reason = "INVALID_PAYLOAD"
	ReasonForbidden          Reason = "FORBIDDEN"
	ReasonTokenExpired       Reason = "TOKEN_EXPIRED"
	ReasonTokenInvalid       Reason = "TOKEN_INVALID"
	ReasonInvalidCredentials Reason = "INVALID_CREDENTIALS"
	ReasonInvalidRefresh     Reason = "INVALID_REFRESH_TOKEN"
	ReasonUsernameTaken      Reason = "USERNAME_TAKEN"
	ReasonRateLimited        Reason = "RATE_LIMITED"
	ReasonInternal           Reason = "INTERNAL"
)

var (
	// ErrLocked is returned when the instructor has locked the room.
	ErrLocked = errors.New("room is locked")
	// ErrNotStarted is returned before the room's start time.
	ErrNotStarted = errors.New("room has not started yet")
	// ErrEnded is returned after the room's end time.
	ErrEnded = errors.New("room has ended")
	// ErrAttemptsExhausted is returned when the caller used every allowed attempt.
	ErrAttemptsExhausted = errors.New("no attempts left")
	// ErrInvalidCode indicates a private room join code did not match.
	ErrInvalidCode = errors.New("invalid room code")
	// ErrNotJoined is returned when a private room is used without joining by code.
	ErrNotJoined = errors.New("room requires joining with a code")
	// ErrConcurrentLimit is returned when a racing admission took the last slot.
	ErrConcurrentLimit = errors.New("attempt limit reached concurrently")
	// ErrLate is returned for submissions received after the deadline.
	ErrLate = errors.New("time expired")
	// ErrAlreadySubmitted indicates the attempt reached its terminal state earlier.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrRoomNotFound indicates an unknown room id.
	ErrRoomNotFound = errors.New("room not found")
	// ErrAttemptNotFound indicates an unknown attempt id.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidRoom is returned for room definitions that break the data model.
	ErrInvalidRoom = errors.New("invalid room definition")
	// ErrInvalidQuiz is returned for quizzes without questions or correct options.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrInvalidPayload is returned for malformed requests.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrTokenExpired indicates an access token past its expiry.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid indicates a malformed or forged access token.
	ErrTokenInvalid = errors.New("access token invalid")
	// ErrInvalidCredentials is returned for a bad username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefreshToken is returned for unknown, revoked or reused refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrUsernameTaken is returned on duplicate registration.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUserNotFound indicates an unknown account.
	ErrUserNotFound = errors.New("user not found")
)

var reasons = map[error]Reason{
	ErrLocked:              ReasonLocked,
	ErrNotStarted:          ReasonNotStarted,
	ErrEnded:               ReasonEnded,
	ErrAttemptsExhausted:   ReasonAttemptsExhausted,
	ErrInvalidCode:         ReasonInvalidCode,
	ErrNotJoined:           ReasonNotJoined,
	ErrConcurrentLimit:     ReasonConcurrentLimit,
	ErrLate:                ReasonLate,
	ErrAlreadySubmitted:    ReasonAlreadySubmitted,
	ErrRoomNotFound:        ReasonRoomNotFound,
	ErrAttemptNotFound:     ReasonAttemptNotFound,
	ErrQuizNotFound:        ReasonQuizNotFound,
	ErrQuestionNotFound:    ReasonQuestionNotFound,
	ErrInvalidRoom:         ReasonInvalidRoom,
	ErrInvalidQuiz:         ReasonInvalidQuiz,
	ErrInvalidPayload:      ReasonInvalidPayload,
	ErrForbidden:           ReasonForbidden,
	ErrTokenExpired:        ReasonTokenExpired,
	ErrTokenInvalid:        ReasonTokenInvalid,
	ErrInvalidCredentials:  ReasonInvalidCredentials,
	ErrInvalidRefreshToken: ReasonInvalidRefresh,
	ErrUsernameTaken:       ReasonUsernameTaken,
	ErrUserNotFound:        ReasonInvalidCredentials,
}

// ReasonOf maps an error (possibly wrapped) to its reason code.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	for sentinel, reason := range reasons {
		if errors.Is(err, sentinel) {
			return reason
		}
	}
	return ReasonInternal
}

// Decision is the outcome of the admission gate.
type Decision struct {
	Admitted bool   `json:"admitted"`
	Reason   Reason `json:"reason,omitempty"`
}

// Allow is the positive decision.
var Allow = Decision{Admitted: true}

// Deny builds a negative decision.
func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into its sentinel error; admitted decisions return nil.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	for sentinel, reason := range reasons {
		if reason == d.Reason {
			return sentinel
		}
	}
	return ErrForbidden
}
