package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
)

func TestRefreshStoreRoundTripAndExpiry(t *testing.T) {
	mr, client := newServer(t)
	store := NewRefreshStore(client)
	ctx := context.Background()

	session := auth.RefreshSession{Token: "t1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Put(ctx, session))
	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	ttl := mr.TTL("refresh:t1")
	assert.True(t, ttl > 0 && ttl <= time.Hour, "ttl bound to expiry, got %v", ttl)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, "t1")
	assert.Equal(t, domain.ErrInvalidRefreshToken, err)
}

func TestRefreshStoreMarkRotatedOnce(t *testing.T) {
	_, client := newServer(t)
	store := NewRefreshStore(client)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, auth.RefreshSession{Token: "t1", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))

	const n = 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		seen = map[string]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			successor := domain.CredentialPair{RefreshToken: "next-" + string(rune('a'+i))}
			session, won, err := store.MarkRotated(ctx, "t1", successor, now)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if won {
				wins++
			}
			seen[session.Successor.RefreshToken]++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one winner")
	assert.Len(t, seen, 1, "every caller agrees on the successor")

	_, _, err := store.MarkRotated(ctx, "missing", domain.CredentialPair{}, now)
	assert.Equal(t, domain.ErrInvalidRefreshToken, err)
	require.NoError(t, store.Delete(ctx, "t1"))
	_, err = store.Get(ctx, "t1")
	assert.Equal(t, domain.ErrInvalidRefreshToken, err)
}

func TestMembershipStore(t *testing.T) {
	mr, client := newServer(t)
	store := NewMembershipStore(client)
	ctx := context.Background()

	joined, err := store.HasJoined(ctx, "room-1", "u1")
	require.NoError(t, err)
	assert.False(t, joined)

	require.NoError(t, store.MarkJoined(ctx, "room-1", "u1"))
	joined, err = store.HasJoined(ctx, "room-1", "u1")
	require.NoError(t, err)
	assert.True(t, joined)

	ok, err := mr.SIsMember("room:room-1:members", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}
