package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"quiz-room-service/internal/domain"
)

// Leaderboard projects the best submitted attempt of every participant in a room.
func (s *Service) Leaderboard(ctx context.Context, caller domain.Identity, roomID string) (domain.Leaderboard, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if err := s.checkRoomAccess(ctx, caller, room); err != nil {
		return domain.Leaderboard{}, err
	}
	return s.projectLeaderboard(ctx, room.ID)
}

// Subscribe returns a channel that receives leaderboard updates for a room.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Service) Subscribe(ctx context.Context, caller domain.Identity, roomID string) (<-chan domain.Leaderboard, func(), error) {
	initial, err := s.Leaderboard(ctx, caller, roomID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(roomID, initial)
	return ch, cancel, nil
}

func (s *Service) projectLeaderboard(ctx context.Context, roomID string) (domain.Leaderboard, error) {
	attempts, err := s.attempts.ListSubmitted(ctx, roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return buildLeaderboard(roomID, attempts, s.now()), nil
}

func (s *Service) publishLeaderboard(ctx context.Context, roomID string) {
	if !s.hub.hasSubscribers(roomID) {
		return
	}
	lb, err := s.projectLeaderboard(ctx, roomID)
	if err != nil {
		s.log.Warn("leaderboard projection failed", zap.String("room", roomID), zap.Error(err))
		return
	}
	s.hub.broadcast(lb)
}

func buildLeaderboard(roomID string, attempts []domain.Attempt, now time.Time) domain.Leaderboard {
	best := make(map[string]domain.LeaderboardEntry)
	for _, a := range attempts {
		if !a.Submitted() || a.Score == nil || a.SubmittedAt == nil {
			continue
		}
		entry := domain.LeaderboardEntry{
			UserID:        a.UserID,
			DisplayName:   a.DisplayName,
			Score:         *a.Score,
			Total:         a.Total,
			AttemptNumber: a.AttemptNumber,
			SubmittedAt:   *a.SubmittedAt,
		}
		prev, ok := best[a.UserID]
		if !ok || entry.Score > prev.Score || (entry.Score == prev.Score && entry.SubmittedAt.Before(prev.SubmittedAt)) {
			best[a.UserID] = entry
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(best))
	for _, entry := range best {
		entries = append(entries, entry)
	}
	// score desc, then earliest submission, then name
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].SubmittedAt.Equal(entries[j].SubmittedAt) {
			return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	return domain.Leaderboard{RoomID: roomID, Entries: entries, UpdatedAt: now}
}

// leaderboardHub fans leaderboard snapshots out to subscribers per room.
type leaderboardHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func newLeaderboardHub() *leaderboardHub {
	return &leaderboardHub{
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

func (h *leaderboardHub) subscribe(roomID string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.subscribers[roomID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[roomID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[roomID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, roomID)
		}
	}
	return ch, cancel
}

func (h *leaderboardHub) hasSubscribers(roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[roomID]) > 0
}

func (h *leaderboardHub) broadcast(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[lb.RoomID] {
		select {
		case ch <- lb:
		default:
			// drop the stale snapshot so a slow reader never blocks submitters
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
