package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newAuthService(t *testing.T) (*auth.Service, *clock) {
	t.Helper()
	return newAuthServiceWith(t, auth.Config{InstructorSignup: true})
}

func newAuthServiceWith(t *testing.T, cfg auth.Config) (*auth.Service, *clock) {
	t.Helper()
	clk := &clock{now: time.Now()}
	cfg.RefreshTTL = 24 * time.Hour
	cfg.RotationGrace = 30 * time.Second
	cfg.BcryptCost = bcrypt.MinCost
	svc := auth.NewService(
		memory.NewUserStore(),
		memory.NewRefreshStore(),
		auth.NewTokenIssuer("test-secret", 15*time.Minute),
		cfg,
		auth.WithClock(clk.Now),
	)
	return svc, clk
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, "alice", "secret-pw", domain.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInstructor, user.Role)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	id, err := svc.Tokens().Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id.UserID)
	assert.Equal(t, "alice", id.Name)

	_, _, err = svc.Register(ctx, "alice", "another-pw", domain.RoleStudent)
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody", "secret-pw")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, loginPair, err := svc.Login(ctx, "alice", "secret-pw")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, loginPair.RefreshToken)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _ := newAuthService(t)
	_, _, err := svc.Register(context.Background(), "bob", "123", domain.RoleStudent)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	_, _, err = svc.Register(context.Background(), "bob", "long-enough", domain.Role("admin"))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestInstructorSignupIsGated(t *testing.T) {
	svc, _ := newAuthServiceWith(t, auth.Config{})
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "mallory", "secret-pw", domain.RoleInstructor)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, _, err = svc.Login(ctx, "mallory", "secret-pw")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	student, _, err := svc.Register(ctx, "sam", "secret-pw", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStudent, student.Role)

	owner, pair, err := svc.Provision(ctx, "frizzle", "secret-pw", domain.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInstructor, owner.Role)
	id, err := svc.Tokens().Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInstructor, id.Role)
}

func TestAccessTokenExpiry(t *testing.T) {
	svc, clk := newAuthService(t)
	_, pair, err := svc.Register(context.Background(), "carol", "secret-pw", domain.RoleStudent)
	require.NoError(t, err)

	clk.Advance(16 * time.Minute)
	_, err = svc.Tokens().Parse(pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)

	_, err = svc.Tokens().Parse("not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	other := auth.NewTokenIssuer("other-secret", time.Minute)
	forged, _, err := other.Issue(domain.Identity{UserID: "u1", Name: "mallory", Role: domain.RoleInstructor})
	require.NoError(t, err)
	_, err = svc.Tokens().Parse(forged)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestRefreshRotatesWithGrace(t *testing.T) {
	svc, clk := newAuthService(t)
	ctx := context.Background()
	_, pair, err := svc.Register(ctx, "dave", "secret-pw", domain.RoleStudent)
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// a racing client presenting the old token inside the grace window gets the same pair
	again, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, next, again)

	clk.Advance(time.Minute)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)

	// the successor is still good
	_, err = svc.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshConcurrentAgree(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	_, pair, err := svc.Register(ctx, "erin", "secret-pw", domain.RoleStudent)
	require.NoError(t, err)

	const n = 8
	results := make([]domain.CredentialPair, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].RefreshToken, results[i].RefreshToken)
	}
}

func TestLogoutRevokes(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	_, pair, err := svc.Register(ctx, "frank", "secret-pw", domain.RoleStudent)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	_, err = svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
}
