package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/crypto/bcrypt"
	"quiz-room-service/internal/app"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/postgres"
	"quiz-room-service/internal/infra/postgres/migrations"
	infraredis "quiz-room-service/internal/infra/redis"
)

type stack struct {
	svc  *app.Service
	auth *auth.Service
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	migrateUp(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err, "connect pg")
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	require.NoError(t, err, "redis client")
	t.Cleanup(func() { _ = redisClient.Close() })

	rooms := postgres.NewRoomStore(pool)
	svc := app.NewService(app.Repositories{
		Rooms:    rooms,
		Quizzes:  infraredis.NewQuizRepository(redisClient, postgres.NewQuizStore(pool), 5*time.Minute),
		Attempts: postgres.NewAttemptStore(pool),
		Members:  rooms,
	})
	authSvc := auth.NewService(
		postgres.NewUserStore(pool),
		infraredis.NewRefreshStore(redisClient),
		auth.NewTokenIssuer("integration", 15*time.Minute),
		auth.Config{RefreshTTL: time.Hour, RotationGrace: 30 * time.Second, BcryptCost: bcrypt.MinCost},
	)
	return &stack{svc: svc, auth: authSvc}
}

func TestRoomLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	_, _, err := s.auth.Register(ctx, "frizzle", "secret-pw", domain.RoleInstructor)
	require.ErrorIs(t, err, domain.ErrForbidden, "instructors are provisioned, not self-registered")
	ownerUser, _, err := s.auth.Provision(ctx, "frizzle", "secret-pw", domain.RoleInstructor)
	require.NoError(t, err, "provision instructor")
	studentUser, pair, err := s.auth.Register(ctx, "alice", "secret-pw", domain.RoleStudent)
	require.NoError(t, err, "register student")
	_, _, err = s.auth.Register(ctx, "ALICE", "secret-pw", domain.RoleStudent)
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
	owner, student := ownerUser.Identity(), studentUser.Identity()

	quiz, err := s.svc.CreateQuiz(ctx, owner, sampleQuiz())
	require.NoError(t, err)
	room, err := s.svc.CreateRoom(ctx, owner, app.RoomInput{
		QuizID:           quiz.ID,
		Title:            "Week 1",
		Visibility:       domain.VisibilityPrivate,
		TimeLimitMinutes: 10,
		MaxAttempts:      2,
	})
	require.NoError(t, err)

	_, err = s.svc.Start(ctx, student, room.ID)
	require.ErrorIs(t, err, domain.ErrNotJoined, "before joining")
	_, err = s.svc.JoinByCode(ctx, student, strings.ToLower(room.RoomCode))
	require.NoError(t, err)

	// five racing starts against a ceiling of two
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		attempts []domain.Attempt
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := s.svc.Start(ctx, student, room.ID)
			if err != nil {
				return
			}
			mu.Lock()
			attempts = append(attempts, a)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, attempts, 2)

	attempt := attempts[0]
	assert.Equal(t, 10, attempt.TimeLimitMinutes)
	longer := 45
	_, err = s.svc.Reschedule(ctx, owner, room.ID, app.ScheduleInput{TimeLimitMinutes: &longer})
	require.NoError(t, err)
	view, err := s.svc.GetAttempt(ctx, student, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, view.Attempt.TimeLimitMinutes, "time limit bound at admission")
	assert.Equal(t, 10, view.Room.TimeLimitMinutes)

	require.NoError(t, s.svc.RecordAnswer(ctx, student, attempt.ID, domain.Answer{QuestionID: "q1", Selected: "4"}))

	results := make(chan domain.SubmitResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.svc.Submit(ctx, student, attempt.ID, []domain.Answer{{QuestionID: "q2", Selected: "Paris"}}, time.Now())
			if !assert.NoError(t, err) {
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	replays := 0
	for res := range results {
		assert.Equal(t, 2, res.Score)
		assert.Equal(t, 2, res.Total)
		if res.AlreadySubmitted {
			replays++
		}
	}
	assert.Equal(t, 1, replays, "exactly one replayed submit")

	lb, err := s.svc.Leaderboard(ctx, owner, room.ID)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, student.UserID, lb.Entries[0].UserID)
	assert.Equal(t, 2, lb.Entries[0].Score)

	rotated, err := s.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	replayed, err := s.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err, "refresh within grace")
	assert.Equal(t, rotated.RefreshToken, replayed.RefreshToken, "grace replay returns the same successor")
}

func migrateUp(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		require.NoError(t, err, "start postgres")
	}
	host, err := container.Host(ctx)
	require.NoError(t, err, "host")
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err, "port")
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		require.NoError(t, err, "start redis")
	}
	host, err := container.Host(ctx)
	require.NoError(t, err, "redis host")
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err, "redis port")
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Title: "Basics",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: "4"},
			{ID: "q2", Prompt: "Capital of France?", Options: []string{"Paris", "Lyon"}, Correct: "Paris"},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
