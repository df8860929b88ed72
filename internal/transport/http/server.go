package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"quiz-room-service/internal/app"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/metrics"
)

// Options configures the HTTP surface.
type Options struct {
	Logger         *zap.Logger
	Metrics        *metrics.Recorder
	AllowedOrigins []string
	// RateLimit requests per RateWindow on the /auth endpoints, per client IP.
	RateLimit      int
	RateWindow     time.Duration
	RequestTimeout time.Duration
}

// Server exposes the room and attempt use cases over JSON and websockets.
type Server struct {
	svc      *app.Service
	auth     *auth.Service
	log      *zap.Logger
	metrics  *metrics.Recorder
	limiter  *ipLimiter
	origins  []string
	timeout  time.Duration
	upgrader websocket.Upgrader
}

func NewServer(svc *app.Service, authSvc *auth.Service, opts Options) *Server {
	s := &Server{
		svc:     svc,
		auth:    authSvc,
		log:     opts.Logger,
		metrics: opts.Metrics,
		origins: opts.AllowedOrigins,
		timeout: opts.RequestTimeout,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if opts.RateLimit > 0 && opts.RateWindow > 0 {
		s.limiter = newIPLimiter(opts.RateLimit, opts.RateWindow)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.stampReceipt)
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/auth", func(ar chi.Router) {
		if s.limiter != nil {
			ar.Use(s.limiter.middleware)
		}
		ar.Use(middleware.Timeout(s.timeout))
		ar.Post("/register", s.handleRegister)
		ar.Post("/login", s.handleLogin)
		ar.Post("/refresh", s.handleRefresh)
		ar.Post("/logout", s.handleLogout)
	})

	// websocket streams outlive the request timeout
	r.With(s.authenticate).Get("/ws/rooms/{roomId}/leaderboard", s.handleLeaderboardStream)

	r.Group(func(pr chi.Router) {
		pr.Use(s.authenticate)
		pr.Use(middleware.Timeout(s.timeout))

		pr.Post("/rooms/join", s.handleJoin)
		pr.Get("/rooms/{roomId}", s.handleGetRoom)
		pr.Post("/rooms/{roomId}/start", s.handleStart)
		pr.Get("/rooms/{roomId}/leaderboard", s.handleLeaderboard)

		pr.Get("/attempts/{attemptId}", s.handleGetAttempt)
		pr.Put("/attempts/{attemptId}/answers", s.handleRecordAnswer)
		pr.Post("/attempts/{attemptId}/submit", s.handleSubmit)

		pr.Post("/quizzes", s.handleCreateQuiz)
		pr.Post("/rooms", s.handleCreateRoom)
		pr.Patch("/rooms/{roomId}/lock", s.handleSetLock)
		pr.Patch("/rooms/{roomId}/schedule", s.handleReschedule)
	})
	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
