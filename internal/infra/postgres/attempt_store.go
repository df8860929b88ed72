package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-room-service/internal/domain"
)

const attemptColumns = `id, room_id, quiz_id, user_id, display_name, attempt_number,
	time_limit_minutes, status, created_at, deadline, responses, score, total, correctness, submitted_at`

// AttemptStore persists attempts. Creation takes a transaction-scoped advisory lock on the
// (room, user) pair; the unique (room_id, user_id, attempt_number) constraint backs it up
// across replicas that somehow bypass the lock.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) CountAttempts(ctx context.Context, roomID, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM attempts WHERE room_id=$1 AND user_id=$2`, roomID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt, maxAttempts int) (domain.Attempt, error) {
	responses, err := json.Marshal(attempt.Responses)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("marshal responses: %w", err)
	}

	err = s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, attempt.RoomID+"|"+attempt.UserID); err != nil {
			return fmt.Errorf("lock attempts: %w", err)
		}
		var used int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM attempts WHERE room_id=$1 AND user_id=$2`,
			attempt.RoomID, attempt.UserID).Scan(&used); err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if used >= maxAttempts {
			return domain.ErrConcurrentLimit
		}
		attempt.AttemptNumber = used + 1
		_, err := tx.Exec(ctx, `
			INSERT INTO attempts (id, room_id, quiz_id, user_id, display_name, attempt_number,
				time_limit_minutes, status, created_at, deadline, responses)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)`,
			attempt.ID, attempt.RoomID, attempt.QuizID, attempt.UserID, attempt.DisplayName,
			attempt.AttemptNumber, attempt.TimeLimitMinutes, string(attempt.Status), attempt.CreatedAt, attempt.Deadline, string(responses))
		if isUniqueViolation(err) {
			return domain.ErrConcurrentLimit
		}
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, attemptID)
	return scanAttempt(row)
}

// SaveResponse merges one selection into the JSONB responses of an open attempt.
func (s *AttemptStore) SaveResponse(ctx context.Context, attemptID, questionID, selected string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE attempts
		SET responses = responses || jsonb_build_object($2::text, $3::text),
			status = $4
		WHERE id=$1 AND submitted_at IS NULL`,
		attemptID, questionID, selected, string(domain.AttemptInProgress))
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetAttempt(ctx, attemptID); err != nil {
			return err
		}
		return domain.ErrAlreadySubmitted
	}
	return nil
}

// CompleteAttempt is a conditional update; exactly one caller moves the row to SUBMITTED.
func (s *AttemptStore) CompleteAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	responses, err := json.Marshal(attempt.Responses)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("marshal responses: %w", err)
	}
	correctness, err := json.Marshal(attempt.Correctness)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("marshal correctness: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE attempts
		SET status = $2, responses = $3::jsonb, score = $4, total = $5,
			correctness = $6::jsonb, submitted_at = $7
		WHERE id=$1 AND submitted_at IS NULL
		RETURNING `+attemptColumns,
		attempt.ID, string(domain.AttemptSubmitted), string(responses), attempt.Score, attempt.Total,
		string(correctness), attempt.SubmittedAt)
	stored, err := scanAttempt(row)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		existing, getErr := s.GetAttempt(ctx, attempt.ID)
		if getErr != nil {
			return domain.Attempt{}, getErr
		}
		return existing, domain.ErrAlreadySubmitted
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return stored, nil
}

func (s *AttemptStore) ListSubmitted(ctx context.Context, roomID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE room_id=$1 AND submitted_at IS NOT NULL ORDER BY submitted_at`,
		roomID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		attempt     domain.Attempt
		status      string
		responses   []byte
		correctness []byte
	)
	err := row.Scan(&attempt.ID, &attempt.RoomID, &attempt.QuizID, &attempt.UserID, &attempt.DisplayName,
		&attempt.AttemptNumber, &attempt.TimeLimitMinutes, &status, &attempt.CreatedAt, &attempt.Deadline, &responses,
		&attempt.Score, &attempt.Total, &correctness, &attempt.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	attempt.Status = domain.AttemptStatus(status)
	attempt.Responses = map[string]string{}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &attempt.Responses); err != nil {
			return domain.Attempt{}, fmt.Errorf("unmarshal responses: %w", err)
		}
	}
	if len(correctness) > 0 {
		if err := json.Unmarshal(correctness, &attempt.Correctness); err != nil {
			return domain.Attempt{}, fmt.Errorf("unmarshal correctness: %w", err)
		}
	}
	return attempt, nil
}
