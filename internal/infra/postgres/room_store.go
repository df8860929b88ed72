package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-room-service/internal/domain"
)

const roomColumns = `id, quiz_id, owner_id, title, active, visibility, time_limit_minutes,
	max_attempts, starts_at, ends_at, COALESCE(room_code, ''), created_at`

// RoomStore persists rooms and private-room memberships.
type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, roomID)
	return scanRoom(row)
}

func (s *RoomStore) FindByCode(ctx context.Context, code string) (domain.Room, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_code=$1`, code)
	return scanRoom(row)
}

func (s *RoomStore) SaveRoom(ctx context.Context, room domain.Room) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, quiz_id, owner_id, title, active, visibility, time_limit_minutes,
			max_attempts, starts_at, ends_at, room_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			active = EXCLUDED.active,
			visibility = EXCLUDED.visibility,
			time_limit_minutes = EXCLUDED.time_limit_minutes,
			max_attempts = EXCLUDED.max_attempts,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			room_code = EXCLUDED.room_code`,
		room.ID, room.QuizID, room.OwnerID, room.Title, room.Active, string(room.Visibility),
		room.TimeLimitMinutes, room.MaxAttempts, room.StartsAt, room.EndsAt, room.RoomCode, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

func (s *RoomStore) MarkJoined(ctx context.Context, roomID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("mark joined: %w", err)
	}
	return nil
}

func (s *RoomStore) HasJoined(ctx context.Context, roomID, userID string) (bool, error) {
	var joined bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`,
		roomID, userID).Scan(&joined)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return joined, nil
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var (
		room       domain.Room
		visibility string
	)
	err := row.Scan(&room.ID, &room.QuizID, &room.OwnerID, &room.Title, &room.Active, &visibility,
		&room.TimeLimitMinutes, &room.MaxAttempts, &room.StartsAt, &room.EndsAt, &room.RoomCode, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("scan room: %w", err)
	}
	room.Visibility = domain.Visibility(visibility)
	return room, nil
}
