package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-room-service/internal/auth"
	"quiz-room-service/internal/domain"
)

// RefreshStore keeps refresh sessions at refresh:{token} with a TTL equal to the session
// lifetime, so expired tokens disappear without a sweeper.
type RefreshStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewRefreshStore(client *redis.Client) *RefreshStore {
	return &RefreshStore{client: client, clock: time.Now}
}

func (s *RefreshStore) Put(ctx context.Context, session auth.RefreshSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ttl := session.ExpiresAt.Sub(s.clock())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(session.Token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("store refresh session: %w", err)
	}
	return nil
}

func (s *RefreshStore) Get(ctx context.Context, token string) (auth.RefreshSession, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.RefreshSession{}, domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return auth.RefreshSession{}, fmt.Errorf("load refresh session: %w", err)
	}
	var session auth.RefreshSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return auth.RefreshSession{}, fmt.Errorf("decode refresh session: %w", err)
	}
	return session, nil
}

// MarkRotated uses optimistic locking (WATCH/MULTI) so exactly one exchange records its
// successor; losers read back the winner's session.
func (s *RefreshStore) MarkRotated(ctx context.Context, token string, successor domain.CredentialPair, at time.Time) (auth.RefreshSession, bool, error) {
	key := s.key(token)
	var (
		result auth.RefreshSession
		won    bool
	)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}
		var session auth.RefreshSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return err
		}
		if session.RotatedAt != nil {
			result, won = session, false
			return nil
		}
		session.RotatedAt = &at
		session.Successor = &successor
		updated, err := json.Marshal(session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result, won = session, true
		return nil
	}

	for i := 0; i < 5; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return auth.RefreshSession{}, false, err
		}
		return result, won, nil
	}
	// contended that hard, somebody else rotated; report what is stored
	session, err := s.Get(ctx, token)
	if err != nil {
		return auth.RefreshSession{}, false, err
	}
	return session, false, nil
}

func (s *RefreshStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *RefreshStore) key(token string) string {
	return "refresh:" + token
}

// MembershipStore records private-room joins as a Redis set per room.
type MembershipStore struct {
	client *redis.Client
}

func NewMembershipStore(client *redis.Client) *MembershipStore {
	return &MembershipStore{client: client}
}

func (s *MembershipStore) MarkJoined(ctx context.Context, roomID, userID string) error {
	return s.client.SAdd(ctx, s.key(roomID), userID).Err()
}

func (s *MembershipStore) HasJoined(ctx context.Context, roomID, userID string) (bool, error) {
	return s.client.SIsMember(ctx, s.key(roomID), userID).Result()
}

func (s *MembershipStore) key(roomID string) string {
	return "room:" + roomID + ":members"
}
