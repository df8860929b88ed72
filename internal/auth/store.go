package auth

import (
	"context"
	"time"

	"quiz-room-service/internal/domain"
)

// UserStore persists accounts. CreateUser returns domain.ErrUsernameTaken on a duplicate
// username; lookups return domain.ErrUserNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) error
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// RefreshSession is the server side of an opaque refresh token.
type RefreshSession struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`

	// Set once the token has been exchanged. Successor is handed out again to callers that
	// present the same token within the grace window.
	RotatedAt *time.Time             `json:"rotatedAt,omitempty"`
	Successor *domain.CredentialPair `json:"successor,omitempty"`
}

// RefreshStore keeps refresh sessions. Get returns domain.ErrInvalidRefreshToken for
// unknown tokens.
type RefreshStore interface {
	Put(ctx context.Context, session RefreshSession) error
	Get(ctx context.Context, token string) (RefreshSession, error)
	// MarkRotated records successor on token unless another exchange got there first. It
	// returns the stored session and whether this call won.
	MarkRotated(ctx context.Context, token string, successor domain.CredentialPair, at time.Time) (RefreshSession, bool, error)
	Delete(ctx context.Context, token string) error
}
