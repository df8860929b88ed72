package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"quiz-room-service/internal/domain"
)

// Metrics receives refresh outcomes.
type Metrics interface {
	Refresh(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) Refresh(string) {}

// Refresh outcomes reported to Metrics.
const (
	RefreshRotated = "rotated"
	RefreshReplay  = "grace_replay"
	RefreshDenied  = "denied"
)

// Config tunes credential lifetimes. Self-service sign-up only creates students unless
// InstructorSignup is set; instructors are otherwise provisioned by the operator.
type Config struct {
	RefreshTTL       time.Duration
	RotationGrace    time.Duration
	BcryptCost       int
	InstructorSignup bool
}

// Service registers users and issues, rotates and revokes credential pairs.
type Service struct {
	users    UserStore
	sessions RefreshStore
	tokens   *TokenIssuer
	cfg      Config
	now      func() time.Time
	log      *zap.Logger
	metrics  Metrics
}

// Option customizes a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.tokens.now = now
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func NewService(users UserStore, sessions RefreshStore, tokens *TokenIssuer, cfg Config, opts ...Option) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
		now:      time.Now,
		log:      zap.NewNop(),
		metrics:  nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the access token verifier used by the HTTP middleware.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Register is the public sign-up path. An empty role means student.
func (s *Service) Register(ctx context.Context, username, password string, role domain.Role) (domain.User, domain.CredentialPair, error) {
	if role == domain.RoleInstructor && !s.cfg.InstructorSignup {
		return domain.User{}, domain.CredentialPair{}, domain.ErrForbidden
	}
	return s.Provision(ctx, username, password, role)
}

// Provision creates an account of any role and signs it in. It is reserved for operator
// tooling such as demo seeding and is not exposed over HTTP.
func (s *Service) Provision(ctx context.Context, username, password string, role domain.Role) (domain.User, domain.CredentialPair, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 6 {
		return domain.User{}, domain.CredentialPair{}, domain.ErrInvalidPayload
	}
	if role == "" {
		role = domain.RoleStudent
	}
	if role != domain.RoleStudent && role != domain.RoleInstructor {
		return domain.User{}, domain.CredentialPair{}, domain.ErrInvalidPayload
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, err
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, domain.CredentialPair{}, err
	}
	pair, err := s.issue(ctx, user.Identity())
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, err
	}
	s.log.Info("user registered", zap.String("user", user.ID), zap.String("role", string(role)))
	return user, pair, nil
}

// Login checks the password and issues a fresh pair.
func (s *Service) Login(ctx context.Context, username, password string) (domain.User, domain.CredentialPair, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.CredentialPair{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.User{}, domain.CredentialPair{}, domain.ErrInvalidCredentials
	}
	pair, err := s.issue(ctx, user.Identity())
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, err
	}
	return user, pair, nil
}

// Refresh exchanges a refresh token for a new pair. The old token is rotated out; within
// the grace window it keeps returning the same successor so that racing clients agree.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (domain.CredentialPair, error) {
	if refreshToken == "" {
		s.metrics.Refresh(RefreshDenied)
		return domain.CredentialPair{}, domain.ErrInvalidRefreshToken
	}
	session, err := s.sessions.Get(ctx, refreshToken)
	if err != nil {
		s.metrics.Refresh(RefreshDenied)
		return domain.CredentialPair{}, err
	}
	now := s.now()
	if !now.Before(session.ExpiresAt) {
		s.metrics.Refresh(RefreshDenied)
		return domain.CredentialPair{}, domain.ErrInvalidRefreshToken
	}
	if session.RotatedAt != nil {
		return s.replay(session, now)
	}

	user, err := s.users.GetUser(ctx, session.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.metrics.Refresh(RefreshDenied)
		return domain.CredentialPair{}, domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return domain.CredentialPair{}, err
	}
	pair, err := s.issue(ctx, user.Identity())
	if err != nil {
		return domain.CredentialPair{}, err
	}
	stored, won, err := s.sessions.MarkRotated(ctx, refreshToken, pair, now)
	if err != nil {
		_ = s.sessions.Delete(ctx, pair.RefreshToken)
		if errors.Is(err, domain.ErrInvalidRefreshToken) {
			s.metrics.Refresh(RefreshDenied)
		}
		return domain.CredentialPair{}, err
	}
	if !won {
		// a concurrent exchange rotated first; drop ours and agree with theirs
		_ = s.sessions.Delete(ctx, pair.RefreshToken)
		return s.replay(stored, now)
	}
	s.metrics.Refresh(RefreshRotated)
	s.log.Debug("refresh token rotated", zap.String("user", user.ID))
	return pair, nil
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Delete(ctx, refreshToken)
}

func (s *Service) replay(session RefreshSession, now time.Time) (domain.CredentialPair, error) {
	if session.Successor == nil || now.Sub(*session.RotatedAt) > s.cfg.RotationGrace {
		s.metrics.Refresh(RefreshDenied)
		s.log.Info("rotated refresh token reused", zap.String("user", session.UserID))
		return domain.CredentialPair{}, domain.ErrInvalidRefreshToken
	}
	s.metrics.Refresh(RefreshReplay)
	return *session.Successor, nil
}

func (s *Service) issue(ctx context.Context, id domain.Identity) (domain.CredentialPair, error) {
	access, expiresAt, err := s.tokens.Issue(id)
	if err != nil {
		return domain.CredentialPair{}, err
	}
	refresh := uuid.NewString()
	if err := s.sessions.Put(ctx, RefreshSession{
		Token:     refresh,
		UserID:    id.UserID,
		ExpiresAt: s.now().Add(s.cfg.RefreshTTL),
	}); err != nil {
		return domain.CredentialPair{}, err
	}
	return domain.CredentialPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: expiresAt,
	}, nil
}
