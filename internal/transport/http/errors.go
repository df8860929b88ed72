package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"quiz-room-service/internal/domain"
)

type errorBody struct {
	Reason  domain.Reason `json:"reason"`
	Message string        `json:"message"`
}

var statusByReason = map[domain.Reason]int{
	domain.ReasonLocked:             http.StatusForbidden,
	domain.ReasonNotStarted:         http.StatusForbidden,
	domain.ReasonEnded:              http.StatusForbidden,
	domain.ReasonAttemptsExhausted:  http.StatusForbidden,
	domain.ReasonNotJoined:          http.StatusForbidden,
	domain.ReasonForbidden:          http.StatusForbidden,
	domain.ReasonInvalidCode:        http.StatusNotFound,
	domain.ReasonRoomNotFound:       http.StatusNotFound,
	domain.ReasonAttemptNotFound:    http.StatusNotFound,
	domain.ReasonQuizNotFound:       http.StatusNotFound,
	domain.ReasonConcurrentLimit:    http.StatusConflict,
	domain.ReasonLate:               http.StatusConflict,
	domain.ReasonAlreadySubmitted:   http.StatusConflict,
	domain.ReasonUsernameTaken:      http.StatusConflict,
	domain.ReasonQuestionNotFound:   http.StatusBadRequest,
	domain.ReasonInvalidPayload:     http.StatusBadRequest,
	domain.ReasonInvalidRoom:        http.StatusBadRequest,
	domain.ReasonInvalidQuiz:        http.StatusBadRequest,
	domain.ReasonTokenExpired:       http.StatusUnauthorized,
	domain.ReasonTokenInvalid:       http.StatusUnauthorized,
	domain.ReasonInvalidCredentials: http.StatusUnauthorized,
	domain.ReasonInvalidRefresh:     http.StatusUnauthorized,
	domain.ReasonRateLimited:        http.StatusTooManyRequests,
}

// StatusFor returns the HTTP status used for a reason code.
func StatusFor(reason domain.Reason) int {
	if status, ok := statusByReason[reason]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reason := domain.ReasonOf(err)
	status := StatusFor(reason)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Reason: reason, Message: message})
}

func writeReason(w http.ResponseWriter, reason domain.Reason, message string) {
	writeJSON(w, StatusFor(reason), errorBody{Reason: reason, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrInvalidPayload
	}
	return nil
}
