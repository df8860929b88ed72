package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

type credentialsResponse struct {
	User        domain.User           `json:"user"`
	Credentials domain.CredentialPair `json:"credentials"`
}

type registerRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, pair, err := s.auth.Register(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, credentialsResponse{User: user, Credentials: pair})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, pair, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsResponse{User: user, Credentials: pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetRoom(r.Context(), identity(r), chi.URLParam(r, "roomId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type joinRequest struct {
	RoomCode string `json:"roomCode"`
}

type joinResponse struct {
	RoomID string `json:"roomId"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	roomID, err := s.svc.JoinByCode(r.Context(), identity(r), req.RoomCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{RoomID: roomID})
}

type startResponse struct {
	AttemptID        string    `json:"attemptId"`
	AttemptNumber    int       `json:"attemptNumber"`
	CreatedAt        time.Time `json:"createdAt"`
	Deadline         time.Time `json:"deadline"`
	TimeLimitMinutes int       `json:"timeLimitMinutes"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	attempt, err := s.svc.Start(r.Context(), identity(r), chi.URLParam(r, "roomId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{
		AttemptID:        attempt.ID,
		AttemptNumber:    attempt.AttemptNumber,
		CreatedAt:        attempt.CreatedAt,
		Deadline:         attempt.Deadline,
		TimeLimitMinutes: attempt.TimeLimitMinutes,
	})
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetAttempt(r.Context(), identity(r), chi.URLParam(r, "attemptId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	var answer domain.Answer
	if err := decodeJSON(w, r, &answer); err != nil {
		s.writeError(w, r, err)
		return
	}
	if answer.QuestionID == "" {
		s.writeError(w, r, domain.ErrInvalidPayload)
		return
	}
	if err := s.svc.RecordAnswer(r.Context(), identity(r), chi.URLParam(r, "attemptId"), answer); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Answers []domain.Answer `json:"answers"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	receivedAt := s.receivedAt(r)
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Submit(r.Context(), identity(r), chi.URLParam(r, "attemptId"), req.Answers, receivedAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := s.svc.Leaderboard(r.Context(), identity(r), chi.URLParam(r, "roomId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var quiz domain.Quiz
	if err := decodeJSON(w, r, &quiz); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.svc.CreateQuiz(r.Context(), identity(r), quiz)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var in app.RoomInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	room, err := s.svc.CreateRoom(r.Context(), identity(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

type lockRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleSetLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Active == nil {
		s.writeError(w, r, domain.ErrInvalidPayload)
		return
	}
	room, err := s.svc.SetActive(r.Context(), identity(r), chi.URLParam(r, "roomId"), *req.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var in app.ScheduleInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	room, err := s.svc.Reschedule(r.Context(), identity(r), chi.URLParam(r, "roomId"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}
