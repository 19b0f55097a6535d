package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"interactive-video-service/internal/domain"
)

// ProgressStore persists resume state with an idempotent upsert keyed by
// (user_id, video_id). Position is last-write-wins; completed IDs merge as a
// set union so an in-flight write racing a seek cannot drop entries.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

func (s *ProgressStore) Load(ctx context.Context, userID, videoID string) (domain.ProgressRecord, error) {
	record := domain.ProgressRecord{UserID: userID, VideoID: videoID}
	err := s.pool.QueryRow(ctx, `
		SELECT last_position, completed_ids
		FROM video_progress
		WHERE user_id=$1 AND video_id=$2`,
		userID, videoID).Scan(&record.LastPosition, &record.CompletedInteractionIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecord{UserID: userID, VideoID: videoID}, nil
	}
	if err != nil {
		return record, fmt.Errorf("load progress: %w", err)
	}
	return record, nil
}

func (s *ProgressStore) Save(ctx context.Context, record domain.ProgressRecord) error {
	completed := record.CompletedInteractionIDs
	if completed == nil {
		completed = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO video_progress (user_id, video_id, last_position, completed_ids, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, video_id)
		DO UPDATE SET
			last_position = EXCLUDED.last_position,
			completed_ids = (
				SELECT ARRAY(SELECT DISTINCT unnest(video_progress.completed_ids || EXCLUDED.completed_ids))
			),
			updated_at = now()`,
		record.UserID, record.VideoID, record.LastPosition, completed)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
