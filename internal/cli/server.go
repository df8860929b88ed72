package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"quiz-room-service/internal/app"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/config"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
	"quiz-room-service/internal/infra/postgres"
	redisstore "quiz-room-service/internal/infra/redis"
	"quiz-room-service/internal/logging"
	"quiz-room-service/internal/metrics"
	transport "quiz-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret (or JWT_SECRET) must be set")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	recorder := metrics.New()
	repos, users := buildRepositories(cfg, pool, redisClient)

	var refreshStore auth.RefreshStore = memory.NewRefreshStore()
	if redisClient != nil {
		refreshStore = redisstore.NewRefreshStore(redisClient)
	}

	service := app.NewService(repos, app.WithLogger(logger), app.WithMetrics(recorder))
	authService := auth.NewService(
		users,
		refreshStore,
		auth.NewTokenIssuer(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.AccessTTL, 15*time.Minute)),
		auth.Config{
			RefreshTTL:       config.TTLDuration(cfg.Auth.RefreshTTL, 7*24*time.Hour),
			RotationGrace:    config.TTLDuration(cfg.Auth.RotationGrace, 30*time.Second),
			InstructorSignup: cfg.Auth.InstructorSignup,
		},
		auth.WithLogger(logger),
		auth.WithMetrics(recorder),
	)

	if cfg.Server.SeedDemo {
		if err := seedDemo(ctx, service, authService, logger); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	api := transport.NewServer(service, authService, transport.Options{
		Logger:         logger,
		Metrics:        recorder,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.RateLimit.Requests,
		RateWindow:     config.TTLDuration(cfg.RateLimit.Window, time.Minute),
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting quiz room service",
			zap.String("addr", server.Addr),
			zap.Bool("postgres", pool != nil),
			zap.Bool("redis", redisClient != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildRepositories picks Postgres for durable state when configured and layers Redis on
// top for the quiz cache. Private-room membership lives in Postgres when it is available
// and falls back to Redis, then memory.
func buildRepositories(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (app.Repositories, auth.UserStore) {
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var quizStore memory.QuizStore = memory.NewQuizMap(nil)
	repos := app.Repositories{}
	var users auth.UserStore
	if pool != nil {
		quizStore = postgres.NewQuizStore(pool)
		rooms := postgres.NewRoomStore(pool)
		repos.Rooms = rooms
		repos.Members = rooms
		repos.Attempts = postgres.NewAttemptStore(pool)
		users = postgres.NewUserStore(pool)
	} else {
		repos.Rooms = memory.NewRoomStore()
		repos.Members = memory.NewMembershipStore()
		repos.Attempts = memory.NewAttemptStore()
		users = memory.NewUserStore()
	}

	if redisClient != nil {
		repos.Quizzes = redisstore.NewQuizRepository(redisClient, quizStore, quizTTL)
		if pool == nil {
			repos.Members = redisstore.NewMembershipStore(redisClient)
		}
	} else {
		repos.Quizzes = memory.NewQuizRepository(quizStore, quizTTL)
	}
	return repos, users
}

const (
	demoInstructor = "demo-instructor"
	demoPassword   = "demo-password"
)

// seedDemo creates an instructor account with one public room so a fresh deployment can
// be exercised without any setup. It does nothing when the account already exists.
func seedDemo(ctx context.Context, svc *app.Service, authSvc *auth.Service, logger *zap.Logger) error {
	user, _, err := authSvc.Provision(ctx, demoInstructor, demoPassword, domain.RoleInstructor)
	if errors.Is(err, domain.ErrUsernameTaken) {
		logger.Info("demo data already present")
		return nil
	}
	if err != nil {
		return err
	}
	owner := user.Identity()
	quiz, err := svc.CreateQuiz(ctx, owner, domain.Quiz{
		Title: "Warm-up",
		Questions: []domain.Question{
			{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: "4"},
			{Prompt: "Which planet is known as the red planet?", Options: []string{"Venus", "Mars", "Jupiter"}, Correct: "Mars"},
		},
	})
	if err != nil {
		return err
	}
	room, err := svc.CreateRoom(ctx, owner, app.RoomInput{
		QuizID:           quiz.ID,
		Title:            "Demo room",
		TimeLimitMinutes: 10,
		MaxAttempts:      3,
	})
	if err != nil {
		return err
	}
	logger.Info("demo data seeded",
		zap.String("instructor", demoInstructor),
		zap.String("quiz", quiz.ID),
		zap.String("room", room.ID),
	)
	return nil
}
