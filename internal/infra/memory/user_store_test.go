package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
)

func TestUserStoreUniqueUsername(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, domain.User{ID: "u1", Username: "Alice"}))
	assert.Equal(t, domain.ErrUsernameTaken, store.CreateUser(ctx, domain.User{ID: "u2", Username: "alice"}))

	got, err := store.FindByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestRefreshStoreRotatesOnce(t *testing.T) {
	store := NewRefreshStore()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, auth.RefreshSession{Token: "t1", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))
	first := domain.CredentialPair{AccessToken: "a2", RefreshToken: "t2"}
	_, won, err := store.MarkRotated(ctx, "t1", first, now)
	require.NoError(t, err)
	assert.True(t, won, "first rotation wins")

	session, won, err := store.MarkRotated(ctx, "t1", domain.CredentialPair{RefreshToken: "t3"}, now)
	require.NoError(t, err)
	assert.False(t, won, "second rotation loses")
	require.NotNil(t, session.Successor)
	assert.Equal(t, "t2", session.Successor.RefreshToken)

	now = now.Add(2 * time.Hour)
	_, err = store.Get(ctx, "t1")
	assert.Equal(t, domain.ErrInvalidRefreshToken, err)
}
