package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"interactive-video-service/internal/domain"
)

// AttemptStore persists attempts in the interaction_attempts table. When
// resubmission is disallowed the insert claims the (user_id, element_id) key
// with ON CONFLICT DO NOTHING; zero affected rows means a duplicate.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) Record(ctx context.Context, record domain.AttemptRecord, allowResubmission bool) error {
	if allowResubmission {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO interaction_attempts (video_id, element_id, user_id, option_id, is_correct, attempted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, element_id)
			DO UPDATE SET video_id=$1, option_id=$4, is_correct=$5, attempted_at=$6`,
			record.VideoID, record.ElementID, record.UserID, record.OptionID, record.IsCorrect, record.Timestamp)
		if err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO interaction_attempts (video_id, element_id, user_id, option_id, is_correct, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, element_id) DO NOTHING`,
		record.VideoID, record.ElementID, record.UserID, record.OptionID, record.IsCorrect, record.Timestamp)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateAttempt
	}
	return nil
}
