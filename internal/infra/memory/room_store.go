package memory

import (
	"context"
	"sync"

	"quiz-room-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	mu     sync.RWMutex
	rooms  map[string]domain.Room
	byCode map[string]string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:  make(map[string]domain.Room),
		byCode: make(map[string]string),
	}
}

func (s *RoomStore) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *RoomStore) FindByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID, ok := s.byCode[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return s.rooms[roomID], nil
}

func (s *RoomStore) SaveRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.rooms[room.ID]; ok && prev.RoomCode != "" && prev.RoomCode != room.RoomCode {
		delete(s.byCode, prev.RoomCode)
	}
	s.rooms[room.ID] = room
	if room.RoomCode != "" {
		s.byCode[room.RoomCode] = room.ID
	}
	return nil
}

// MembershipStore remembers private-room joins in memory.
type MembershipStore struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
}

func NewMembershipStore() *MembershipStore {
	return &MembershipStore{members: make(map[string]map[string]struct{})}
}

func (s *MembershipStore) MarkJoined(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.members[roomID]
	if !ok {
		users = make(map[string]struct{})
		s.members[roomID] = users
	}
	users[userID] = struct{}{}
	return nil
}

func (s *MembershipStore) HasJoined(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[roomID][userID]
	return ok, nil
}
